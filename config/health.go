package config

import "time"

// HealthConfig 健康检查配置
type HealthConfig struct {
	// ProbeInterval 探测周期
	ProbeInterval Duration `json:"probe_interval" yaml:"probe_interval"`

	// ProbeTimeout 单次探测超时（必须短于探测周期）
	ProbeTimeout Duration `json:"probe_timeout" yaml:"probe_timeout"`

	// DegradedThreshold 连续失败多少次进入 Degraded
	DegradedThreshold int `json:"degraded_threshold" yaml:"degraded_threshold"`

	// UnhealthyThreshold 连续失败多少次进入 Unhealthy
	UnhealthyThreshold int `json:"unhealthy_threshold" yaml:"unhealthy_threshold"`

	// RecoveryThreshold 恢复 Healthy 需要的连续成功次数
	RecoveryThreshold int `json:"recovery_threshold" yaml:"recovery_threshold"`

	// LatencySmoothing 延迟平滑系数（EWMA α，0-1）
	LatencySmoothing float64 `json:"latency_smoothing" yaml:"latency_smoothing"`
}

// DefaultHealthConfig 返回默认健康检查配置
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		ProbeInterval:      Duration(30 * time.Second),
		ProbeTimeout:       Duration(5 * time.Second),
		DegradedThreshold:  2,
		UnhealthyThreshold: 4,
		RecoveryThreshold:  3,
		LatencySmoothing:   0.3,
	}
}
