package balancer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	healthif "github.com/dep2p/go-deskrelay/pkg/interfaces/health"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// Balancer 负载均衡器实现
type Balancer struct {
	cfg    config.BalancerConfig
	logger *slog.Logger

	mu          sync.RWMutex
	algo        types.Algorithm
	nodes       map[types.NodeID]*types.RelayNode
	order       []types.NodeID
	assignments map[types.SessionID]*balancerif.Assignment
	rrIndex     uint64

	// monitor 可选的健康检查器挂钩；节点增删时联动探测任务
	monitor healthif.Checker
}

var _ balancerif.LoadBalancer = (*Balancer)(nil)

// New 创建负载均衡器
func New(cfg config.BalancerConfig) *Balancer {
	algo, ok := types.ParseAlgorithm(cfg.Algorithm)
	if !ok {
		algo = types.AlgoRoundRobin
	}
	return &Balancer{
		cfg:         cfg,
		logger:      logger.Logger("balancer"),
		algo:        algo,
		nodes:       make(map[types.NodeID]*types.RelayNode),
		assignments: make(map[types.SessionID]*balancerif.Assignment),
	}
}

// SetMonitor 挂接健康检查器
//
// 之后 AddNode/RemoveNode 会联动开始/停止探测。
func (b *Balancer) SetMonitor(monitor healthif.Checker) {
	b.mu.Lock()
	b.monitor = monitor
	b.mu.Unlock()
}

// ============================================================================
//                              节点管理
// ============================================================================

// AddNode 注册节点并开始健康探测
func (b *Balancer) AddNode(node *types.RelayNode) error {
	if node == nil || node.ID.IsEmpty() || node.MaxSessions <= 0 {
		return ErrInvalidNode
	}

	b.mu.Lock()
	if _, exists := b.nodes[node.ID]; exists {
		b.mu.Unlock()
		return ErrNodeExists
	}
	n := node.Clone()
	b.nodes[n.ID] = n
	b.order = append(b.order, n.ID)
	monitor := b.monitor
	b.mu.Unlock()

	b.logger.Info("节点已注册",
		"node_id", node.ID,
		"endpoint", node.Endpoint,
		"max_sessions", node.MaxSessions)

	if monitor != nil {
		if err := monitor.StartMonitoring(node.Clone()); err != nil {
			b.logger.Warn("启动健康探测失败", "node_id", node.ID, "error", err)
		}
	}
	return nil
}

// RemoveNode 停止探测并移除节点，改派钉在其上的会话
func (b *Balancer) RemoveNode(id types.NodeID) (*balancerif.RemoveResult, error) {
	b.mu.Lock()

	if _, exists := b.nodes[id]; !exists {
		b.mu.Unlock()
		return nil, ErrNodeMissing
	}

	delete(b.nodes, id)
	for i, nid := range b.order {
		if nid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	// 收集钉在该节点上的分配，按原始提示重新分配
	var pinned []*balancerif.Assignment
	for _, a := range b.assignments {
		if a.NodeID == id {
			pinned = append(pinned, a)
		}
	}

	result := &balancerif.RemoveResult{
		Reassigned: make(map[types.SessionID]types.NodeID),
	}
	for _, a := range pinned {
		delete(b.assignments, a.SessionID)
		newNode, err := b.assignLocked(a.SessionID, a.ClientLocation, a.EstimatedMbps)
		if err != nil {
			result.Dropped = append(result.Dropped, a.SessionID)
			continue
		}
		result.Reassigned[a.SessionID] = newNode
	}

	monitor := b.monitor
	b.mu.Unlock()

	b.logger.Info("节点已移除",
		"node_id", id,
		"reassigned", len(result.Reassigned),
		"dropped", len(result.Dropped))

	if monitor != nil {
		if err := monitor.StopMonitoring(id); err != nil {
			b.logger.Warn("停止健康探测失败", "node_id", id, "error", err)
		}
	}
	return result, nil
}

// Node 返回节点快照
func (b *Balancer) Node(id types.NodeID) (*types.RelayNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n, ok := b.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes 返回所有节点快照（注册顺序）
func (b *Balancer) Nodes() []*types.RelayNode {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*types.RelayNode, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.nodes[id].Clone())
	}
	return out
}

// ============================================================================
//                              会话分配
// ============================================================================

// AssignSession 为会话选择节点
func (b *Balancer) AssignSession(sessionID types.SessionID, loc *types.ClientLocation, estimatedMbps float64) (types.NodeID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.assignments[sessionID]; exists {
		return "", ErrAlreadyAssigned
	}
	return b.assignLocked(sessionID, loc, estimatedMbps)
}

// assignLocked 执行选择与记账（须持写锁）
func (b *Balancer) assignLocked(sessionID types.SessionID, loc *types.ClientLocation, estimatedMbps float64) (types.NodeID, error) {
	candidates := b.candidatesLocked()
	if len(candidates) == 0 {
		return "", ErrNoAvailableNode
	}

	node, err := b.selectLocked(candidates, loc, estimatedMbps)
	if err != nil {
		return "", err
	}

	node.CurrentSessions++
	b.assignments[sessionID] = &balancerif.Assignment{
		SessionID:      sessionID,
		NodeID:         node.ID,
		AssignedAt:     time.Now(),
		Algorithm:      b.algo,
		ClientLocation: loc,
		EstimatedMbps:  estimatedMbps,
	}

	b.logger.Debug("会话已分配",
		"session_id", sessionID.ShortString(),
		"node_id", node.ID,
		"algorithm", b.algo)
	return node.ID, nil
}

// ReleaseSession 释放会话的分配
func (b *Balancer) ReleaseSession(sessionID types.SessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.assignments[sessionID]
	if !ok {
		return ErrAssignmentMissing
	}
	delete(b.assignments, sessionID)

	if n, exists := b.nodes[a.NodeID]; exists && n.CurrentSessions > 0 {
		n.CurrentSessions--
	}
	return nil
}

// Assignment 返回会话的分配记录
func (b *Balancer) Assignment(sessionID types.SessionID) (*balancerif.Assignment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assignments[sessionID]
	if !ok {
		return nil, false
	}
	clone := *a
	return &clone, true
}

// ============================================================================
//                              算法与外部写入
// ============================================================================

// SetAlgorithm 原子更新算法，下一次 AssignSession 生效
func (b *Balancer) SetAlgorithm(algo types.Algorithm) {
	b.mu.Lock()
	b.algo = algo
	b.mu.Unlock()

	b.logger.Info("负载均衡算法已切换", "algorithm", algo)
}

// Algorithm 返回当前算法
func (b *Balancer) Algorithm() types.Algorithm {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.algo
}

// UpdateNodeHealth 更新节点健康状态与延迟
func (b *Balancer) UpdateNodeHealth(id types.NodeID, health types.HealthStatus, latencyMs float64, checkedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok {
		return ErrNodeMissing
	}
	n.Health = health
	n.LatencyMs = latencyMs
	n.LastHealthCheck = checkedAt
	return nil
}

// UpdateNodeBandwidth 更新节点当前带宽分配
func (b *Balancer) UpdateNodeBandwidth(id types.NodeID, currentMbps float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok {
		return ErrNodeMissing
	}
	n.CurrentBandwidthMbps = currentMbps
	return nil
}

// candidatesLocked 过滤候选节点（须持锁）
//
// 条件：Healthy、会话容量未满、带宽低于阈值、延迟达标。
func (b *Balancer) candidatesLocked() []*types.RelayNode {
	out := make([]*types.RelayNode, 0, len(b.order))
	for _, id := range b.order {
		n := b.nodes[id]
		if n.Health != types.HealthHealthy {
			continue
		}
		if !n.HasCapacity() {
			continue
		}
		if n.CurrentBandwidthMbps >= n.BandwidthCapMbps*b.cfg.BandwidthThreshold {
			continue
		}
		if n.LatencyMs > b.cfg.LatencyThresholdMs {
			continue
		}
		out = append(out, n)
	}
	return out
}
