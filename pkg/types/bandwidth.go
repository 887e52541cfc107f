package types

import "time"

// ============================================================================
//                              UsageProfile - 使用特征
// ============================================================================

// UsageProfile 会话的带宽使用特征
type UsageProfile struct {
	// AvgMbps 平均码率
	AvgMbps float64

	// PeakMbps 峰值码率
	PeakMbps float64

	// BurstPercent 突发容忍度（百分比，决定分配的 peak 上限）
	BurstPercent float64

	// Variability 码率波动性（0.0 稳定 - 1.0 高波动）
	Variability float64

	// LatencySensitive 是否延迟敏感
	LatencySensitive bool
}

// ProfileForQoS 返回 QoS 等级对应的默认使用特征
//
// 中继服务器在创建会话时按 QoS 等级派生请求特征。
func ProfileForQoS(qos QoSClass) UsageProfile {
	switch qos {
	case QoSCritical:
		return UsageProfile{BurstPercent: 50, Variability: 0.2, LatencySensitive: true}
	case QoSHigh:
		return UsageProfile{BurstPercent: 30, Variability: 0.4, LatencySensitive: true}
	case QoSLow:
		return UsageProfile{BurstPercent: 10, Variability: 0.8, LatencySensitive: false}
	default:
		return UsageProfile{BurstPercent: 20, Variability: 0.5, LatencySensitive: false}
	}
}

// ============================================================================
//                              Allocation - 带宽分配
// ============================================================================

// Allocation 一个会话在一个池上的带宽预留
//
// 不变量：GuaranteedMbps ≤ AllocatedMbps ≤ PeakMbps。
type Allocation struct {
	// SessionID 会话标识
	SessionID SessionID

	// NodeID 池所在节点
	NodeID NodeID

	// AllocatedMbps 当前分配带宽
	AllocatedMbps float64

	// GuaranteedMbps 保证带宽（拥塞控制不会低于此值）
	GuaranteedMbps float64

	// PeakMbps 峰值带宽（扩容不会高于此值）
	PeakMbps float64

	// Priority QoS 等级
	Priority QoSClass

	// Profile 使用特征
	Profile UsageProfile

	// AllocatedAt 分配时间
	AllocatedAt time.Time

	// ExpiresAt 过期时间（零值表示不过期）
	ExpiresAt time.Time
}

// IsExpired 检查分配是否过期
func (a *Allocation) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Clone 返回分配的拷贝
func (a *Allocation) Clone() *Allocation {
	c := *a
	return &c
}

// ============================================================================
//                              Adjustment - 带宽调整事件
// ============================================================================

// Adjustment 带宽调整事件
//
// 带宽管理器的每次分配变更都发出一个 Adjustment，
// 上层（中继服务器）据此向客户端传播限速。
type Adjustment struct {
	// SessionID 受影响的会话
	SessionID SessionID

	// NodeID 池所在节点
	NodeID NodeID

	// OldMbps 调整前带宽
	OldMbps float64

	// NewMbps 调整后带宽
	NewMbps float64

	// Reason 调整原因
	Reason AdjustmentReason

	// At 调整时间
	At time.Time
}

// ============================================================================
//                              Snapshot - 池快照
// ============================================================================

// Snapshot 带宽池的一次监控采样
type Snapshot struct {
	// At 采样时间
	At time.Time

	// AllocatedMbps 已分配带宽
	AllocatedMbps float64

	// UsedMbps 实际使用带宽
	UsedMbps float64

	// Utilization 利用率（allocated / total）
	Utilization float64

	// ActiveSessions 活跃会话数
	ActiveSessions int

	// QueueDepths 各 QoS 等级队列深度
	QueueDepths map[QoSClass]int
}
