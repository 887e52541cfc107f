package config

import "time"

// RelayConfig 中继服务器配置
type RelayConfig struct {
	// IdleTimeout 会话空闲超时（超时且 Idle/Disconnected 的会话被清理）
	IdleTimeout Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// CleanupInterval 清理扫描周期
	CleanupInterval Duration `json:"cleanup_interval" yaml:"cleanup_interval"`

	// MaxSessionDuration 会话最长存活时间（0 表示不限制）
	MaxSessionDuration Duration `json:"max_session_duration" yaml:"max_session_duration"`

	// CreateTimeout 会话创建的整体截止时间
	CreateTimeout Duration `json:"create_timeout" yaml:"create_timeout"`

	// DefaultBandwidthMbps 请求未携带估计带宽时的默认值
	DefaultBandwidthMbps float64 `json:"default_bandwidth_mbps" yaml:"default_bandwidth_mbps"`
}

// DefaultRelayConfig 返回默认中继服务器配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		IdleTimeout:          Duration(30 * time.Minute),
		CleanupInterval:      Duration(60 * time.Second),
		MaxSessionDuration:   0,
		CreateTimeout:        Duration(10 * time.Second),
		DefaultBandwidthMbps: 20,
	}
}
