package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jpillora/backoff"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	healthif "github.com/dep2p/go-deskrelay/pkg/interfaces/health"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// maxProbeAttempts 单个周期内的探测尝试次数（含重试）
const maxProbeAttempts = 3

// probeTask 单个节点的探测任务状态
type probeTask struct {
	node   *types.RelayNode
	cancel context.CancelFunc

	status      types.HealthStatus
	latencyMs   float64
	hasLatency  bool
	failures    int
	successes   int
	maintenance bool
}

// Checker 健康检查器实现
type Checker struct {
	cfg    config.HealthConfig
	prober healthif.Prober
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.RWMutex
	tasks     map[types.NodeID]*probeTask
	statusFns []func(healthif.StatusChange)
	probeFns  []func(healthif.ProbeResult)

	stopped int32
	wg      sync.WaitGroup
}

var _ healthif.Checker = (*Checker)(nil)

// New 创建健康检查器
func New(cfg config.HealthConfig, prober healthif.Prober) *Checker {
	return NewWithClock(cfg, prober, clock.New())
}

// NewWithClock 以注入时钟创建健康检查器
func NewWithClock(cfg config.HealthConfig, prober healthif.Prober, clk clock.Clock) *Checker {
	return &Checker{
		cfg:    cfg,
		prober: prober,
		clock:  clk,
		logger: logger.Logger("health"),
		tasks:  make(map[types.NodeID]*probeTask),
	}
}

// ============================================================================
//                              监控任务管理
// ============================================================================

// StartMonitoring 开始监控节点
func (c *Checker) StartMonitoring(node *types.RelayNode) error {
	if atomic.LoadInt32(&c.stopped) == 1 {
		return ErrCheckerStopped
	}
	if node == nil || node.ID.IsEmpty() {
		return ErrInvalidNode
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if _, exists := c.tasks[node.ID]; exists {
		c.mu.Unlock()
		cancel()
		return ErrAlreadyMonitored
	}
	t := &probeTask{
		node:   node.Clone(),
		cancel: cancel,
		status: types.HealthUnknown,
	}
	c.tasks[node.ID] = t
	c.mu.Unlock()

	c.logger.Info("开始监控节点",
		"node_id", node.ID,
		"endpoint", node.Endpoint,
		"interval", time.Duration(c.cfg.ProbeInterval))

	c.wg.Add(1)
	go c.probeLoop(ctx, node.ID)
	return nil
}

// StopMonitoring 取消节点的探测任务
func (c *Checker) StopMonitoring(id types.NodeID) error {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if ok {
		delete(c.tasks, id)
	}
	c.mu.Unlock()

	if !ok {
		return ErrNotMonitored
	}
	t.cancel()

	c.logger.Info("停止监控节点", "node_id", id)
	return nil
}

// SetMaintenance 设置/解除维护状态
func (c *Checker) SetMaintenance(id types.NodeID, on bool) error {
	c.mu.Lock()
	t, ok := c.tasks[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotMonitored
	}

	var change *healthif.StatusChange
	t.maintenance = on
	if on {
		change = c.transitionLocked(t, types.HealthMaintenance)
	} else {
		// 运维解除后回到 Healthy，由后续探测重新评估
		t.failures = 0
		t.successes = 0
		change = c.transitionLocked(t, types.HealthHealthy)
	}
	c.mu.Unlock()

	c.emitStatusChange(change)
	return nil
}

// Status 返回节点当前健康状态
func (c *Checker) Status(id types.NodeID) (types.HealthStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tasks[id]
	if !ok {
		return types.HealthUnknown, false
	}
	return t.status, true
}

// OnStatusChange 注册状态变更回调
func (c *Checker) OnStatusChange(fn func(healthif.StatusChange)) {
	c.mu.Lock()
	c.statusFns = append(c.statusFns, fn)
	c.mu.Unlock()
}

// OnProbe 注册每次探测完成的回调
func (c *Checker) OnProbe(fn func(healthif.ProbeResult)) {
	c.mu.Lock()
	c.probeFns = append(c.probeFns, fn)
	c.mu.Unlock()
}

// Stop 停止所有探测任务
func (c *Checker) Stop() {
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return
	}

	c.mu.Lock()
	for id, t := range c.tasks {
		t.cancel()
		delete(c.tasks, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("健康检查器已停止")
}

// ============================================================================
//                              探测循环
// ============================================================================

// probeLoop 节点探测循环：立即探测一次，此后按周期执行
func (c *Checker) probeLoop(ctx context.Context, id types.NodeID) {
	defer c.wg.Done()

	ticker := c.clock.Ticker(time.Duration(c.cfg.ProbeInterval))
	defer ticker.Stop()

	c.probeOnce(ctx, id)
	for {
		select {
		case <-ticker.C:
			c.probeOnce(ctx, id)
		case <-ctx.Done():
			return
		}
	}
}

// probeOnce 执行一个探测周期
//
// 周期内失败以退避重试，最多 maxProbeAttempts 次；
// 任一次成功即算本周期成功。
func (c *Checker) probeOnce(ctx context.Context, id types.NodeID) {
	c.mu.RLock()
	t, ok := c.tasks[id]
	var node *types.RelayNode
	var maintenance bool
	if ok {
		node = t.node
		maintenance = t.maintenance
	}
	c.mu.RUnlock()

	if !ok || maintenance {
		return
	}

	latency, err := c.probeWithRetry(ctx, node)
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	t, ok = c.tasks[id]
	if !ok || t.maintenance {
		c.mu.Unlock()
		return
	}

	var change *healthif.StatusChange
	if err != nil {
		change = c.recordFailureLocked(t)
	} else {
		change = c.recordSuccessLocked(t, latency)
	}
	result := healthif.ProbeResult{
		NodeID:    id,
		Status:    t.status,
		LatencyMs: t.latencyMs,
		At:        time.Now(),
	}
	probeFns := c.probeFns
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("节点探测失败", "node_id", id, "error", err)
	}

	c.emitStatusChange(change)
	for _, fn := range probeFns {
		fn(result)
	}
}

// probeWithRetry 带退避重试的单周期探测
func (c *Checker) probeWithRetry(ctx context.Context, node *types.RelayNode) (time.Duration, error) {
	bo := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    time.Duration(c.cfg.ProbeTimeout),
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < maxProbeAttempts; attempt++ {
		if attempt > 0 {
			timer := c.clock.Timer(bo.Duration())
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return 0, ctx.Err()
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.ProbeTimeout))
		latency, err := c.prober.Probe(probeCtx, node)
		cancel()
		if err == nil {
			return latency, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// recordSuccessLocked 记录探测成功（须持锁）
func (c *Checker) recordSuccessLocked(t *probeTask, latency time.Duration) *healthif.StatusChange {
	sample := float64(latency) / float64(time.Millisecond)
	if t.hasLatency {
		alpha := c.cfg.LatencySmoothing
		t.latencyMs = alpha*sample + (1-alpha)*t.latencyMs
	} else {
		t.latencyMs = sample
		t.hasLatency = true
	}

	t.failures = 0
	t.successes++

	switch t.status {
	case types.HealthUnknown, types.HealthHealthy:
		return c.transitionLocked(t, types.HealthHealthy)
	default:
		// 降级后的恢复需要连续成功达到阈值
		if t.successes >= c.cfg.RecoveryThreshold {
			return c.transitionLocked(t, types.HealthHealthy)
		}
	}
	return nil
}

// recordFailureLocked 记录探测失败（须持锁）
func (c *Checker) recordFailureLocked(t *probeTask) *healthif.StatusChange {
	t.successes = 0
	t.failures++

	switch {
	case t.failures >= c.cfg.UnhealthyThreshold:
		return c.transitionLocked(t, types.HealthUnhealthy)
	case t.failures >= c.cfg.DegradedThreshold:
		return c.transitionLocked(t, types.HealthDegraded)
	}
	return nil
}

// transitionLocked 执行状态迁移，返回变更通知（无变化返回 nil）
func (c *Checker) transitionLocked(t *probeTask, next types.HealthStatus) *healthif.StatusChange {
	if t.status == next {
		return nil
	}
	change := &healthif.StatusChange{
		NodeID: t.node.ID,
		Old:    t.status,
		New:    next,
		At:     time.Now(),
	}
	t.status = next
	return change
}

// emitStatusChange 分发状态变更
func (c *Checker) emitStatusChange(change *healthif.StatusChange) {
	if change == nil {
		return
	}

	c.mu.RLock()
	fns := c.statusFns
	c.mu.RUnlock()

	c.logger.Info("节点健康状态变更",
		"node_id", change.NodeID,
		"old", change.Old,
		"new", change.New)

	for _, fn := range fns {
		fn(*change)
	}
}
