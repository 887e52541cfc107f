package types

import "time"

// ============================================================================
//                              RelayNode - 中继节点
// ============================================================================

// NodeLocation 节点地理位置
type NodeLocation struct {
	// Country 国家代码（ISO 3166-1 Alpha-2）
	Country string `json:"country" yaml:"country"`

	// Region 区域/省份
	Region string `json:"region" yaml:"region"`

	// City 城市
	City string `json:"city" yaml:"city"`

	// Coords 坐标
	Coords Coordinates `json:"coords" yaml:"coords"`
}

// RelayNode 中继节点
//
// 只由负载均衡器添加/移除；由健康检查器、带宽管理器
// 和会话分配/释放操作变更。
type RelayNode struct {
	// ID 节点标识
	ID NodeID `json:"id" yaml:"id"`

	// Endpoint 网络端点（host:port）
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Location 地理位置
	Location NodeLocation `json:"location" yaml:"location"`

	// MaxSessions 最大并发会话数
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`

	// CurrentSessions 当前会话数
	CurrentSessions int `json:"-" yaml:"-"`

	// BandwidthCapMbps 带宽上限（Mbps）
	BandwidthCapMbps float64 `json:"bandwidth_cap_mbps" yaml:"bandwidth_cap_mbps"`

	// CurrentBandwidthMbps 当前带宽分配（Mbps）
	CurrentBandwidthMbps float64 `json:"-" yaml:"-"`

	// Health 健康状态
	Health HealthStatus `json:"-" yaml:"-"`

	// LatencyMs 测量的往返延迟（毫秒）
	LatencyMs float64 `json:"-" yaml:"-"`

	// LastHealthCheck 上次健康检查时间
	LastHealthCheck time.Time `json:"-" yaml:"-"`

	// Protocols 支持的流协议
	Protocols []string `json:"protocols" yaml:"protocols"`

	// Priority 运维优先级（1-10，越大越优先）
	Priority int `json:"priority" yaml:"priority"`
}

// HasCapacity 检查节点是否还有会话容量
func (n *RelayNode) HasCapacity() bool {
	return n.CurrentSessions < n.MaxSessions
}

// LoadRatio 返回会话负载比（0.0 - 1.0）
func (n *RelayNode) LoadRatio() float64 {
	if n.MaxSessions <= 0 {
		return 1.0
	}
	return float64(n.CurrentSessions) / float64(n.MaxSessions)
}

// Clone 返回节点的浅拷贝
//
// 用于向外部暴露快照，避免调用方持有注册表内部指针。
func (n *RelayNode) Clone() *RelayNode {
	c := *n
	if n.Protocols != nil {
		c.Protocols = append([]string(nil), n.Protocols...)
	}
	return &c
}
