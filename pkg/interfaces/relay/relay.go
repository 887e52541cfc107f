// Package relay 定义中继服务器（组合根）接口
package relay

import (
	"context"
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// SessionDescriptor 会话创建结果
type SessionDescriptor struct {
	// ID 会话标识
	ID types.SessionID

	// NodeID 分配的节点
	NodeID types.NodeID

	// NodeEndpoint 节点网络端点（客户端直接连接的地址）
	NodeEndpoint string

	// Allocation 带宽分配（未启用带宽管理时为 nil）
	Allocation *types.Allocation

	// Routing 地理路由决策（未启用地理路由时为 nil）
	Routing *types.RoutingDecision
}

// ServerMetrics 中继服务器聚合指标
type ServerMetrics struct {
	// SessionsByState 各状态会话数
	SessionsByState map[types.SessionState]int

	// SessionsByQoS 各 QoS 等级会话数
	SessionsByQoS map[types.QoSClass]int

	// SessionsByRegion 各区域会话数
	SessionsByRegion map[string]int

	// NodeUtilization 各节点会话负载比
	NodeUtilization map[types.NodeID]float64

	// AvgSessionDuration 平均会话时长
	AvgSessionDuration time.Duration

	// TotalCreated 创建总数
	TotalCreated int64

	// TotalErrors 错误总数
	TotalErrors int64
}

// Server 中继服务器
//
// 组合根：接收会话请求，调用 路由器 → 均衡器 → 带宽管理器，
// 独占持有会话表，执行周期清理。
// 任一步骤失败时回滚此前的全部操作。
type Server interface {
	// CreateSession 创建会话
	CreateSession(ctx context.Context, clientIP string, estimatedMbps float64, qos types.QoSClass) (*SessionDescriptor, error)

	// Activate 激活会话（Connecting → Active）
	Activate(id types.SessionID) error

	// UpdateActivity 记录活动（Idle → Active，刷新最后活动时间）
	UpdateActivity(id types.SessionID) error

	// MarkIdle 标记空闲（Active → Idle）
	MarkIdle(id types.SessionID) error

	// Terminate 终止会话并释放其全部资源
	Terminate(id types.SessionID) error

	// Session 返回会话快照
	Session(id types.SessionID) (*types.Session, bool)

	// Sessions 返回所有会话快照
	Sessions() []*types.Session

	// Metrics 返回聚合指标
	Metrics() ServerMetrics

	// Start 启动后台任务（清理扫描、调整转发）
	Start(ctx context.Context) error

	// Shutdown 停止后台任务，终止所有会话，等待释放完成
	Shutdown(ctx context.Context) error
}
