// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON/YAML 加载和保存配置
//   - 路由规则、区域定义、节点定义、QoS 策略作为
//     持久化状态单独加载（见 persist.go）
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Balancer.Algorithm = "adaptive"
//	cfg.Bandwidth.Adaptive = true
//
//	if err := cfg.Validate(); err != nil { ... }
package config

// Config deskrelay 的完整配置结构
//
// 按功能模块组织：
//   - Crypto: 端到端加密
//   - Transfer: 文件传输管道
//   - Balancer: 负载均衡
//   - Health: 健康检查
//   - GeoRouter: 地理路由
//   - Bandwidth: 带宽管理
//   - Relay: 中继服务器
//   - Protocol: 控制协议
type Config struct {
	// Crypto 端到端加密配置
	Crypto CryptoConfig `json:"crypto" yaml:"crypto"`

	// Transfer 文件传输配置
	Transfer TransferConfig `json:"transfer" yaml:"transfer"`

	// Balancer 负载均衡配置
	Balancer BalancerConfig `json:"balancer" yaml:"balancer"`

	// Health 健康检查配置
	Health HealthConfig `json:"health" yaml:"health"`

	// GeoRouter 地理路由配置
	GeoRouter GeoRouterConfig `json:"geo_router" yaml:"geo_router"`

	// Bandwidth 带宽管理配置
	Bandwidth BandwidthConfig `json:"bandwidth" yaml:"bandwidth"`

	// Relay 中继服务器配置
	Relay RelayConfig `json:"relay" yaml:"relay"`

	// Protocol 控制协议配置
	Protocol ProtocolConfig `json:"protocol" yaml:"protocol"`

	// Session 端点侧会话控制器配置
	Session SessionConfig `json:"session" yaml:"session"`

	// Metrics 指标导出配置
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Crypto:    DefaultCryptoConfig(),
		Transfer:  DefaultTransferConfig(),
		Balancer:  DefaultBalancerConfig(),
		Health:    DefaultHealthConfig(),
		GeoRouter: DefaultGeoRouterConfig(),
		Bandwidth: DefaultBandwidthConfig(),
		Relay:     DefaultRelayConfig(),
		Protocol:  DefaultProtocolConfig(),
		Session:   DefaultSessionConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}
