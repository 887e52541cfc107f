package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// ============================================================================
//                              持久化状态
// ============================================================================

// QoSPolicy 单个 QoS 等级的运维策略
type QoSPolicy struct {
	// Class QoS 等级名称（critical/high/normal/low）
	Class string `yaml:"class"`

	// GuaranteedFraction 保证带宽占请求带宽的比例
	GuaranteedFraction float64 `yaml:"guaranteed_fraction"`

	// BurstPercent 突发容忍度（百分比）
	BurstPercent float64 `yaml:"burst_percent"`
}

// PersistedState 中继服务器的持久化状态
//
// 只持久化路由规则、区域定义、节点定义和 QoS 策略；
// 存活会话与带宽状态保存在内存中，崩溃后丢失，客户端须重连。
type PersistedState struct {
	// Nodes 节点定义
	Nodes []*types.RelayNode `yaml:"nodes"`

	// Regions 区域定义
	Regions []*types.GeographicRegion `yaml:"regions"`

	// Rules 路由规则
	Rules []*types.RoutingRule `yaml:"rules"`

	// QoSPolicies QoS 策略
	QoSPolicies []QoSPolicy `yaml:"qos_policies"`
}

// LoadState 从 YAML 文件加载持久化状态
func LoadState(path string) (*PersistedState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state PersistedState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}

// SaveState 将持久化状态写入 YAML 文件
func SaveState(path string, state *PersistedState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// LoadConfig 从 YAML 文件加载配置
//
// 文件缺失的字段保留默认值；加载后立即校验。
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
