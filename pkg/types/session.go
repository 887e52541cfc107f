package types

import "time"

// ============================================================================
//                              Session - 会话
// ============================================================================

// Session 中继会话
//
// 由中继服务器创建，只通过其公开操作变更，
// 在显式终止或清理扫描时销毁。
type Session struct {
	// ID 会话标识
	ID SessionID

	// ClientAddr 客户端网络地址（ip:port 或纯 IP）
	ClientAddr string

	// ClientRegion 解析出的客户端区域 ID（地理路由禁用时为空）
	ClientRegion string

	// NodeID 分配的中继节点
	NodeID NodeID

	// AllocatedMbps 已分配带宽（未启用带宽管理时为 0）
	AllocatedMbps float64

	// QoS 服务质量等级
	QoS QoSClass

	// State 生命周期状态
	State SessionState

	// CreatedAt 创建时间
	CreatedAt time.Time

	// LastActivity 最后活动时间
	LastActivity time.Time
}

// IdleFor 返回会话空闲时长
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}
