// Package health 定义健康检查器接口
package health

import (
	"context"
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// Prober 探测能力
//
// 探测 RPC 的具体格式由运维配置决定，本包只约定
// "一次轻量探测，返回往返延迟或错误"。
type Prober interface {
	// Probe 对节点执行一次探测，返回往返延迟
	Probe(ctx context.Context, node *types.RelayNode) (time.Duration, error)
}

// StatusChange 健康状态变更通知
type StatusChange struct {
	// NodeID 节点标识
	NodeID types.NodeID

	// Old 变更前状态
	Old types.HealthStatus

	// New 变更后状态
	New types.HealthStatus

	// At 变更时间
	At time.Time
}

// ProbeResult 单次探测的结论
//
// 每个探测周期结束后发布一次，无论状态是否变化；
// 负载均衡器用它刷新节点的健康、延迟与检查时间。
type ProbeResult struct {
	// NodeID 节点标识
	NodeID types.NodeID

	// Status 本次探测后的健康状态
	Status types.HealthStatus

	// LatencyMs 平滑后的往返延迟（毫秒）
	LatencyMs float64

	// At 探测完成时间
	At time.Time
}

// Checker 健康检查器
//
// 为每个受监控节点运行周期探测任务，更新节点的
// 健康状态、延迟和最后检查时间。
type Checker interface {
	// StartMonitoring 开始监控节点
	//
	// 节点快照提供探测所需的端点信息。
	StartMonitoring(node *types.RelayNode) error

	// StopMonitoring 取消节点的探测任务
	StopMonitoring(id types.NodeID) error

	// SetMaintenance 设置/解除维护状态
	//
	// Maintenance 阻断所有自动迁移；解除后节点回到 Healthy，
	// 由后续探测重新评估。
	SetMaintenance(id types.NodeID, on bool) error

	// Status 返回节点当前健康状态
	Status(id types.NodeID) (types.HealthStatus, bool)

	// OnStatusChange 注册状态变更回调
	OnStatusChange(fn func(StatusChange))

	// OnProbe 注册每次探测完成的回调
	OnProbe(fn func(ProbeResult))

	// Stop 停止所有探测任务
	Stop()
}
