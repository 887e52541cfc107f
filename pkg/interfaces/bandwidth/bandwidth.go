// Package bandwidth 定义带宽管理器接口
package bandwidth

import (
	"context"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// Request 带宽请求
type Request struct {
	// SessionID 请求方会话
	SessionID types.SessionID

	// RequestedMbps 请求带宽
	RequestedMbps float64

	// GuaranteedMbps 保证带宽（≤ RequestedMbps）
	GuaranteedMbps float64

	// Priority QoS 等级
	Priority types.QoSClass

	// Profile 使用特征
	Profile types.UsageProfile

	// NodeHint 节点提示（非空时只考虑该节点的池）
	NodeHint types.NodeID
}

// PoolStats 池状态快照
//
// 不变量：Total = Allocated + Available + Reserved，均非负。
type PoolStats struct {
	// NodeID 池所在节点
	NodeID types.NodeID

	// TotalMbps 总容量
	TotalMbps float64

	// AllocatedMbps 已分配
	AllocatedMbps float64

	// AvailableMbps 可用
	AvailableMbps float64

	// ReservedMbps 为 Critical 流量预留
	ReservedMbps float64

	// Allocations 活跃分配数
	Allocations int

	// QueueDepths 各 QoS 等级队列深度
	QueueDepths map[types.QoSClass]int
}

// Utilization 返回池利用率（allocated / total）
func (p PoolStats) Utilization() float64 {
	if p.TotalMbps <= 0 {
		return 0
	}
	return p.AllocatedMbps / p.TotalMbps
}

// Manager 带宽管理器
//
// 独占持有各节点的带宽池，执行准入控制，
// 并在自适应模式下随拥塞/低利用率收缩或扩张分配。
type Manager interface {
	// AddPool 为节点创建带宽池
	AddPool(node types.NodeID, totalMbps float64) error

	// RemovePool 移除节点的带宽池（释放其全部分配）
	RemovePool(node types.NodeID)

	// RequestBandwidth 准入一个带宽请求
	//
	// 无合适池时返回 ErrNoSuitablePool。
	RequestBandwidth(ctx context.Context, req Request) (*types.Allocation, error)

	// ReleaseBandwidth 释放会话的分配
	ReleaseBandwidth(sessionID types.SessionID) error

	// AdjustAllocation 调整分配（guaranteed ≤ new ≤ peak）
	AdjustAllocation(sessionID types.SessionID, newMbps float64, reason types.AdjustmentReason) error

	// ReportUsage 上报会话实际使用带宽（驱动利用率采样）
	ReportUsage(sessionID types.SessionID, usedMbps float64)

	// Allocation 返回会话的分配快照
	Allocation(sessionID types.SessionID) (*types.Allocation, bool)

	// Pool 返回池状态快照
	Pool(node types.NodeID) (PoolStats, bool)

	// History 返回池的监控采样历史
	History(node types.NodeID) []types.Snapshot

	// Adjustments 返回调整事件通道
	//
	// 同一个监控周期内的调整作为一批连续事件可见。
	Adjustments() <-chan types.Adjustment

	// Start 启动监控循环
	Start(ctx context.Context) error

	// Stop 停止监控循环
	Stop() error
}
