package config

import "time"

// BandwidthConfig 带宽管理配置
type BandwidthConfig struct {
	// Enabled 是否启用带宽管理
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Adaptive 是否启用自适应调整（拥塞控制 + 扩容）
	Adaptive bool `json:"adaptive" yaml:"adaptive"`

	// MonitoringInterval 监控采样周期
	MonitoringInterval Duration `json:"monitoring_interval" yaml:"monitoring_interval"`

	// CongestionThreshold 触发拥塞控制的利用率阈值
	CongestionThreshold float64 `json:"congestion_threshold" yaml:"congestion_threshold"`

	// UnderutilizationThreshold 触发扩容的利用率阈值
	UnderutilizationThreshold float64 `json:"underutilization_threshold" yaml:"underutilization_threshold"`

	// BackoffFactor 拥塞控制的单步收缩比例
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`

	// CriticalReserveFraction 为 Critical 流量预留的容量比例
	CriticalReserveFraction float64 `json:"critical_reserve_fraction" yaml:"critical_reserve_fraction"`

	// HistoryRetention 监控采样历史保留条数
	HistoryRetention int `json:"history_retention" yaml:"history_retention"`

	// ScaleUpFreeCapFraction 单步扩容占池剩余容量的上限
	ScaleUpFreeCapFraction float64 `json:"scale_up_free_cap_fraction" yaml:"scale_up_free_cap_fraction"`
}

// DefaultBandwidthConfig 返回默认带宽管理配置
func DefaultBandwidthConfig() BandwidthConfig {
	return BandwidthConfig{
		Enabled:                   true,
		Adaptive:                  true,
		MonitoringInterval:        Duration(5 * time.Second),
		CongestionThreshold:       0.85,
		UnderutilizationThreshold: 0.30,
		BackoffFactor:             0.25,
		CriticalReserveFraction:   0.10,
		HistoryRetention:          720,
		ScaleUpFreeCapFraction:    0.25,
	}
}
