package bandwidth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// adjustmentBuffer 调整事件通道容量
const adjustmentBuffer = 256

// Pools 带宽管理器实现
type Pools struct {
	cfg    config.BandwidthConfig
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	pools    map[types.NodeID]*pool
	sessions map[types.SessionID]types.NodeID

	adjustCh chan types.Adjustment

	running int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ bandwidthif.Manager = (*Pools)(nil)

// New 创建带宽管理器
func New(cfg config.BandwidthConfig) *Pools {
	return NewWithClock(cfg, clock.New())
}

// NewWithClock 以注入时钟创建带宽管理器
func NewWithClock(cfg config.BandwidthConfig, clk clock.Clock) *Pools {
	return &Pools{
		cfg:      cfg,
		clock:    clk,
		logger:   logger.Logger("bandwidth"),
		pools:    make(map[types.NodeID]*pool),
		sessions: make(map[types.SessionID]types.NodeID),
		adjustCh: make(chan types.Adjustment, adjustmentBuffer),
	}
}

// ============================================================================
//                              池管理
// ============================================================================

// AddPool 为节点创建带宽池
func (m *Pools) AddPool(node types.NodeID, totalMbps float64) error {
	if node.IsEmpty() || totalMbps <= 0 {
		return ErrInvalidPool
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pools[node]; exists {
		return ErrPoolExists
	}
	m.pools[node] = newPool(node, totalMbps, m.cfg.CriticalReserveFraction)

	m.logger.Info("带宽池已创建",
		"node_id", node,
		"total_mbps", totalMbps,
		"reserved_mbps", totalMbps*m.cfg.CriticalReserveFraction)
	return nil
}

// RemovePool 移除节点的带宽池
func (m *Pools) RemovePool(node types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[node]
	if !ok {
		return
	}
	for sessionID := range p.allocations {
		delete(m.sessions, sessionID)
	}
	delete(m.pools, node)

	m.logger.Info("带宽池已移除", "node_id", node, "released", len(p.allocations))
}

// Pool 返回池状态快照
func (m *Pools) Pool(node types.NodeID) (bandwidthif.PoolStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[node]
	if !ok {
		return bandwidthif.PoolStats{}, false
	}
	return p.stats(), true
}

// History 返回池的监控采样历史
func (m *Pools) History(node types.NodeID) []types.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[node]
	if !ok {
		return nil
	}
	return append([]types.Snapshot(nil), p.history...)
}

// ============================================================================
//                              准入与释放
// ============================================================================

// RequestBandwidth 准入一个带宽请求
func (m *Pools) RequestBandwidth(ctx context.Context, req bandwidthif.Request) (*types.Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SessionID.IsEmpty() || req.RequestedMbps <= 0 || req.GuaranteedMbps > req.RequestedMbps {
		return nil, ErrInvalidRequest
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[req.SessionID]; exists {
		return nil, ErrAlreadyAllocated
	}

	p := m.choosePoolLocked(req)
	if p == nil {
		return nil, ErrNoSuitablePool
	}

	a := &types.Allocation{
		SessionID:      req.SessionID,
		NodeID:         p.node,
		AllocatedMbps:  req.RequestedMbps,
		GuaranteedMbps: req.GuaranteedMbps,
		PeakMbps:       req.RequestedMbps * (1 + req.Profile.BurstPercent/100),
		Priority:       req.Priority,
		Profile:        req.Profile,
		AllocatedAt:    time.Now(),
	}
	p.admit(a)
	m.sessions[req.SessionID] = p.node

	m.logger.Debug("带宽已分配",
		"session_id", req.SessionID.ShortString(),
		"node_id", p.node,
		"mbps", a.AllocatedMbps,
		"priority", a.Priority)
	return a.Clone(), nil
}

// choosePoolLocked 选择利用率最低的合格池（须持写锁）
func (m *Pools) choosePoolLocked(req bandwidthif.Request) *pool {
	if !req.NodeHint.IsEmpty() {
		p, ok := m.pools[req.NodeHint]
		if ok && p.admits(req.RequestedMbps, req.Priority) {
			return p
		}
		return nil
	}

	var best *pool
	for _, p := range m.pools {
		if !p.admits(req.RequestedMbps, req.Priority) {
			continue
		}
		if best == nil || p.utilization() < best.utilization() {
			best = p
		}
	}
	return best
}

// ReleaseBandwidth 释放会话的分配
func (m *Pools) ReleaseBandwidth(sessionID types.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.sessions[sessionID]
	if !ok {
		return ErrAllocationMissing
	}
	delete(m.sessions, sessionID)

	if p, exists := m.pools[node]; exists {
		p.evict(sessionID)
	}

	m.logger.Debug("带宽已释放",
		"session_id", sessionID.ShortString(),
		"node_id", node)
	return nil
}

// ============================================================================
//                              调整与上报
// ============================================================================

// AdjustAllocation 调整分配（guaranteed ≤ new ≤ peak）
func (m *Pools) AdjustAllocation(sessionID types.SessionID, newMbps float64, reason types.AdjustmentReason) error {
	m.mu.Lock()

	a, p, err := m.allocationLocked(sessionID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if newMbps < a.GuaranteedMbps || newMbps > a.PeakMbps {
		m.mu.Unlock()
		return ErrAdjustOutOfRange
	}

	adj := types.Adjustment{
		SessionID: sessionID,
		NodeID:    p.node,
		OldMbps:   a.AllocatedMbps,
		NewMbps:   newMbps,
		Reason:    reason,
		At:        time.Now(),
	}
	p.resize(a, newMbps)
	m.mu.Unlock()

	m.emit(adj)
	return nil
}

// ReportUsage 上报会话实际使用带宽
func (m *Pools) ReportUsage(sessionID types.SessionID, usedMbps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if p, exists := m.pools[node]; exists {
		p.usage[sessionID] = usedMbps
	}
}

// Allocation 返回会话的分配快照
func (m *Pools) Allocation(sessionID types.SessionID) (*types.Allocation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, _, err := m.allocationLocked(sessionID)
	if err != nil {
		return nil, false
	}
	return a.Clone(), true
}

// allocationLocked 定位会话的分配与池（须持锁）
func (m *Pools) allocationLocked(sessionID types.SessionID) (*types.Allocation, *pool, error) {
	node, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil, ErrAllocationMissing
	}
	p, exists := m.pools[node]
	if !exists {
		return nil, nil, ErrAllocationMissing
	}
	a, has := p.allocations[sessionID]
	if !has {
		return nil, nil, ErrAllocationMissing
	}
	return a, p, nil
}

// Adjustments 返回调整事件通道
func (m *Pools) Adjustments() <-chan types.Adjustment {
	return m.adjustCh
}

// emit 发布调整事件（通道满时丢弃并告警）
func (m *Pools) emit(adj types.Adjustment) {
	select {
	case m.adjustCh <- adj:
	default:
		m.logger.Warn("调整事件通道已满，事件被丢弃",
			"session_id", adj.SessionID.ShortString(),
			"reason", adj.Reason)
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动监控循环
func (m *Pools) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	m.wg.Add(1)
	go m.monitorLoop(loopCtx)

	m.logger.Info("带宽监控已启动",
		"interval", time.Duration(m.cfg.MonitoringInterval),
		"adaptive", m.cfg.Adaptive)
	return nil
}

// Stop 停止监控循环
func (m *Pools) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return nil
	}
	m.cancel()
	m.wg.Wait()

	m.logger.Info("带宽监控已停止")
	return nil
}
