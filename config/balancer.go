package config

// BalancerConfig 负载均衡配置
type BalancerConfig struct {
	// Algorithm 负载均衡算法
	//
	// 可选值: round_robin / weighted_round_robin / least_connections /
	// weighted_least_connections / geographic / performance / adaptive
	Algorithm string `json:"load_balancing_algorithm" yaml:"load_balancing_algorithm"`

	// BandwidthThreshold 候选过滤的带宽阈值（占带宽上限的比例）
	BandwidthThreshold float64 `json:"bandwidth_threshold" yaml:"bandwidth_threshold"`

	// LatencyThresholdMs 候选过滤的延迟阈值（毫秒）
	LatencyThresholdMs float64 `json:"latency_threshold" yaml:"latency_threshold"`

	// PerfWeight 加权最少连接算法的延迟权重
	PerfWeight float64 `json:"perf_weight" yaml:"perf_weight"`

	// CapacityWeight 加权最少连接算法的容量权重
	CapacityWeight float64 `json:"capacity_weight" yaml:"capacity_weight"`
}

// DefaultBalancerConfig 返回默认负载均衡配置
func DefaultBalancerConfig() BalancerConfig {
	return BalancerConfig{
		Algorithm:          "round_robin",
		BandwidthThreshold: 0.9,
		LatencyThresholdMs: 500,
		PerfWeight:         1.0,
		CapacityWeight:     1.0,
	}
}
