package config

// MetricsConfig 指标导出配置
type MetricsConfig struct {
	// Enabled 是否启用 Prometheus 指标端口
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ListenAddr 指标端口监听地址
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:    true,
		ListenAddr: ":9480",
	}
}
