package config

import "time"

// SessionConfig 端点侧会话控制器配置
type SessionConfig struct {
	// PingInterval 心跳发送周期
	PingInterval Duration `json:"ping_interval" yaml:"ping_interval"`

	// ReconnectMinBackoff 重连退避下限
	ReconnectMinBackoff Duration `json:"reconnect_min_backoff" yaml:"reconnect_min_backoff"`

	// ReconnectMaxBackoff 重连退避上限
	ReconnectMaxBackoff Duration `json:"reconnect_max_backoff" yaml:"reconnect_max_backoff"`

	// MaxReconnectAttempts 单次断线的最大重连尝试次数
	MaxReconnectAttempts int `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
}

// DefaultSessionConfig 返回默认会话控制器配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PingInterval:         Duration(15 * time.Second),
		ReconnectMinBackoff:  Duration(500 * time.Millisecond),
		ReconnectMaxBackoff:  Duration(30 * time.Second),
		MaxReconnectAttempts: 5,
	}
}
