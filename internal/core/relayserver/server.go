package relayserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
	relayif "github.com/dep2p/go-deskrelay/pkg/interfaces/relay"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// sessionRecord 会话及其占用资源的登记
type sessionRecord struct {
	session types.Session

	// hasAllocation 是否持有带宽分配
	hasAllocation bool

	// 登记到区域配额的带宽（终止时退还）
	regionID  string
	usageMbps float64
}

// Server 中继服务器实现
type Server struct {
	cfg    config.RelayConfig
	geoOn  bool
	bwOn   bool
	clock  clock.Clock
	logger *slog.Logger

	engine    cryptocore.Engine
	pipeline  transferif.Pipeline
	balancer  balancerif.LoadBalancer
	router    georouterif.Router
	bandwidth bandwidthif.Manager

	mu       sync.RWMutex
	sessions map[types.SessionID]*sessionRecord

	// 连接前端的推送回调（可选）
	notifyMu    sync.RWMutex
	onAdjust    func(types.Adjustment)
	onTerminate func(types.SessionID)

	// 运维下发的 QoS 策略覆盖
	policyMu sync.RWMutex
	policies map[types.QoSClass]qosOverride

	totalCreated  int64
	totalErrors   int64
	durationSum   int64 // 已终止会话时长之和（纳秒）
	durationCount int64

	running int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ relayif.Server = (*Server)(nil)

// New 创建中继服务器
func New(cfg *config.Config, engine cryptocore.Engine, pipeline transferif.Pipeline,
	lb balancerif.LoadBalancer, router georouterif.Router, bw bandwidthif.Manager) *Server {
	return NewWithClock(cfg, engine, pipeline, lb, router, bw, clock.New())
}

// NewWithClock 以注入时钟创建中继服务器
func NewWithClock(cfg *config.Config, engine cryptocore.Engine, pipeline transferif.Pipeline,
	lb balancerif.LoadBalancer, router georouterif.Router, bw bandwidthif.Manager, clk clock.Clock) *Server {
	return &Server{
		cfg:       cfg.Relay,
		geoOn:     cfg.GeoRouter.Enabled,
		bwOn:      cfg.Bandwidth.Enabled,
		clock:     clk,
		logger:    logger.Logger("relayserver"),
		engine:    engine,
		pipeline:  pipeline,
		balancer:  lb,
		router:    router,
		bandwidth: bw,
		sessions:  make(map[types.SessionID]*sessionRecord),
	}
}

// ============================================================================
//                              会话创建
// ============================================================================

// guaranteedFraction QoS 等级对应的默认保证带宽比例
func guaranteedFraction(qos types.QoSClass) float64 {
	switch qos {
	case types.QoSCritical:
		return 1.0
	case types.QoSHigh:
		return 0.5
	case types.QoSNormal:
		return 0.25
	default:
		return 0
	}
}

// qosOverride 单个 QoS 等级的策略覆盖
type qosOverride struct {
	fraction float64
	burst    float64
}

// ApplyQoSPolicies 应用运维下发的 QoS 策略
//
// 覆盖对应等级的保证带宽比例和突发容忍度；
// 未覆盖的等级沿用内置默认值。
func (s *Server) ApplyQoSPolicies(policies []config.QoSPolicy) error {
	parsed := make(map[types.QoSClass]qosOverride, len(policies))
	for _, p := range policies {
		qos, ok := types.ParseQoSClass(p.Class)
		if !ok {
			return fmt.Errorf("qos policy: unknown class %q", p.Class)
		}
		if p.GuaranteedFraction < 0 || p.GuaranteedFraction > 1 {
			return fmt.Errorf("qos policy %q: guaranteed_fraction out of range", p.Class)
		}
		parsed[qos] = qosOverride{fraction: p.GuaranteedFraction, burst: p.BurstPercent}
	}

	s.policyMu.Lock()
	s.policies = parsed
	s.policyMu.Unlock()
	return nil
}

// guaranteedFractionFor 取策略覆盖后的保证带宽比例
func (s *Server) guaranteedFractionFor(qos types.QoSClass) float64 {
	s.policyMu.RLock()
	ov, ok := s.policies[qos]
	s.policyMu.RUnlock()
	if ok {
		return ov.fraction
	}
	return guaranteedFraction(qos)
}

// profileFor 取策略覆盖后的使用特征
func (s *Server) profileFor(qos types.QoSClass) types.UsageProfile {
	profile := types.ProfileForQoS(qos)
	s.policyMu.RLock()
	ov, ok := s.policies[qos]
	s.policyMu.RUnlock()
	if ok && ov.burst > 0 {
		profile.BurstPercent = ov.burst
	}
	return profile
}

// CreateSession 创建会话
//
// 地理路由 → 节点分配 → 带宽准入 → 登记会话。
// 任一步骤失败时回滚此前全部操作再传播错误。
func (s *Server) CreateSession(ctx context.Context, clientIP string, estimatedMbps float64, qos types.QoSClass) (*relayif.SessionDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.CreateTimeout))
	defer cancel()

	if estimatedMbps <= 0 {
		estimatedMbps = s.cfg.DefaultBandwidthMbps
	}
	sessionID := types.NewSessionID()

	// 1. 地理路由（可选）；定位失败降级为无位置提示
	var loc *types.ClientLocation
	var decision *types.RoutingDecision
	if s.geoOn && s.router != nil {
		var err error
		loc, err = s.router.ClientLocation(ctx, clientIP)
		if err != nil {
			s.logger.Warn("客户端定位失败，继续无位置分配",
				"client_ip", clientIP, "error", err)
		} else if decision, err = s.router.Route(ctx, loc); err != nil {
			s.logger.Warn("地理路由失败，退回均衡器选择",
				"client_ip", clientIP, "error", err)
			decision = nil
		}
	}

	// 2. 节点分配
	nodeID, err := s.balancer.AssignSession(sessionID, loc, estimatedMbps)
	if err != nil {
		atomic.AddInt64(&s.totalErrors, 1)
		return nil, fmt.Errorf("assign session: %w", err)
	}

	// 3. 带宽准入（可选），池钉在已分配节点上
	var alloc *types.Allocation
	if s.bwOn && s.bandwidth != nil {
		alloc, err = s.bandwidth.RequestBandwidth(ctx, bandwidthif.Request{
			SessionID:      sessionID,
			RequestedMbps:  estimatedMbps,
			GuaranteedMbps: estimatedMbps * s.guaranteedFractionFor(qos),
			Priority:       qos,
			Profile:        s.profileFor(qos),
			NodeHint:       nodeID,
		})
		if err != nil {
			s.rollback(sessionID, false, "", 0)
			atomic.AddInt64(&s.totalErrors, 1)
			return nil, fmt.Errorf("request bandwidth: %w", err)
		}
	}

	// 整体截止时间在资源占用后越界：同样回滚
	if err := ctx.Err(); err != nil {
		s.rollback(sessionID, alloc != nil, "", 0)
		atomic.AddInt64(&s.totalErrors, 1)
		return nil, err
	}

	// 4. 登记会话
	now := s.clock.Now()
	rec := &sessionRecord{
		session: types.Session{
			ID:           sessionID,
			ClientAddr:   clientIP,
			NodeID:       nodeID,
			QoS:          qos,
			State:        types.StateConnecting,
			CreatedAt:    now,
			LastActivity: now,
		},
		hasAllocation: alloc != nil,
	}
	if alloc != nil {
		rec.session.AllocatedMbps = alloc.AllocatedMbps
	}
	if decision != nil {
		rec.session.ClientRegion = decision.RegionID
		rec.regionID = decision.RegionID
		rec.usageMbps = estimatedMbps
		s.router.RecordUsage(decision.RegionID, estimatedMbps)
	}

	s.mu.Lock()
	s.sessions[sessionID] = rec
	s.mu.Unlock()
	atomic.AddInt64(&s.totalCreated, 1)

	// 5. 返回会话描述符
	endpoint := ""
	if node, ok := s.balancer.Node(nodeID); ok {
		endpoint = node.Endpoint
	}

	s.logger.Info("会话已创建",
		"session_id", sessionID.ShortString(),
		"node_id", nodeID,
		"region", rec.session.ClientRegion,
		"qos", qos.String(),
		"estimated_mbps", estimatedMbps)

	return &relayif.SessionDescriptor{
		ID:           sessionID,
		NodeID:       nodeID,
		NodeEndpoint: endpoint,
		Allocation:   alloc,
		Routing:      decision,
	}, nil
}

// rollback 释放会话创建过程中已占用的资源
//
// 顺序：先带宽分配，后节点分配，最后区域配额。
func (s *Server) rollback(sessionID types.SessionID, hasAllocation bool, regionID string, usageMbps float64) {
	if hasAllocation {
		if err := s.bandwidth.ReleaseBandwidth(sessionID); err != nil {
			s.logger.Warn("回滚带宽分配失败",
				"session_id", sessionID.ShortString(), "error", err)
		}
	}
	if err := s.balancer.ReleaseSession(sessionID); err != nil {
		s.logger.Warn("回滚节点分配失败",
			"session_id", sessionID.ShortString(), "error", err)
	}
	if regionID != "" && s.router != nil {
		s.router.RecordUsage(regionID, -usageMbps)
	}
}

// ============================================================================
//                              生命周期操作
// ============================================================================

// Activate 激活会话（Connecting → Active）
func (s *Server) Activate(id types.SessionID) error {
	return s.transition(id, types.StateActive, true)
}

// UpdateActivity 记录活动并刷新最后活动时间
//
// Idle 会话被唤醒回 Active；其他存活状态只刷新时间。
func (s *Server) UpdateActivity(id types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return ErrSessionMissing
	}
	if rec.session.State == types.StateIdle {
		rec.session.State = types.StateActive
	}
	rec.session.LastActivity = s.clock.Now()
	return nil
}

// MarkIdle 标记空闲（Active → Idle）
func (s *Server) MarkIdle(id types.SessionID) error {
	return s.transition(id, types.StateIdle, false)
}

// setNotifier 注册连接前端的推送回调
func (s *Server) setNotifier(onAdjust func(types.Adjustment), onTerminate func(types.SessionID)) {
	s.notifyMu.Lock()
	s.onAdjust = onAdjust
	s.onTerminate = onTerminate
	s.notifyMu.Unlock()
}

// markDisconnected 连接断开时的状态降级
//
// 状态机没有到 Disconnected 的直接边，这里经 Disconnecting 走两步。
// 会话保留，等清理扫描按空闲超时回收；客户端重连会换新会话。
func (s *Server) markDisconnected(id types.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok || rec.session.State.IsTerminal() {
		return
	}
	if rec.session.State.CanTransitionTo(types.StateDisconnecting) {
		rec.session.State = types.StateDisconnecting
	}
	if rec.session.State.CanTransitionTo(types.StateDisconnected) {
		rec.session.State = types.StateDisconnected
	}
}

// transition 执行状态迁移
func (s *Server) transition(id types.SessionID, next types.SessionState, touch bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return ErrSessionMissing
	}
	if !rec.session.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.session.State, next)
	}
	rec.session.State = next
	if touch {
		rec.session.LastActivity = s.clock.Now()
	}
	return nil
}

// Terminate 终止会话并释放其全部资源
func (s *Server) Terminate(id types.SessionID) error {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionMissing
	}
	delete(s.sessions, id)
	duration := s.clock.Now().Sub(rec.session.CreatedAt)
	s.mu.Unlock()

	atomic.AddInt64(&s.durationSum, int64(duration))
	atomic.AddInt64(&s.durationCount, 1)

	// 在会话密钥撤销前推送终止通知
	s.notifyMu.RLock()
	onTerminate := s.onTerminate
	s.notifyMu.RUnlock()
	if onTerminate != nil {
		onTerminate(id)
	}

	s.rollback(id, rec.hasAllocation, rec.regionID, rec.usageMbps)
	s.engine.RevokeSession(id)
	s.pipeline.SetRateLimit(id, 0)

	s.logger.Info("会话已终止",
		"session_id", id.ShortString(),
		"node_id", rec.session.NodeID,
		"duration", duration)
	return nil
}

// ============================================================================
//                              查询与指标
// ============================================================================

// Session 返回会话快照
func (s *Server) Session(id types.SessionID) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := rec.session
	return &snapshot, true
}

// Sessions 返回所有会话快照
func (s *Server) Sessions() []*types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		snapshot := rec.session
		out = append(out, &snapshot)
	}
	return out
}

// Metrics 返回聚合指标
func (s *Server) Metrics() relayif.ServerMetrics {
	m := relayif.ServerMetrics{
		SessionsByState:  make(map[types.SessionState]int),
		SessionsByQoS:    make(map[types.QoSClass]int),
		SessionsByRegion: make(map[string]int),
		NodeUtilization:  make(map[types.NodeID]float64),
		TotalCreated:     atomic.LoadInt64(&s.totalCreated),
		TotalErrors:      atomic.LoadInt64(&s.totalErrors),
	}

	s.mu.RLock()
	for _, rec := range s.sessions {
		m.SessionsByState[rec.session.State]++
		m.SessionsByQoS[rec.session.QoS]++
		if rec.session.ClientRegion != "" {
			m.SessionsByRegion[rec.session.ClientRegion]++
		}
	}
	s.mu.RUnlock()

	for _, node := range s.balancer.Nodes() {
		m.NodeUtilization[node.ID] = node.LoadRatio()
	}

	if count := atomic.LoadInt64(&s.durationCount); count > 0 {
		m.AvgSessionDuration = time.Duration(atomic.LoadInt64(&s.durationSum) / count)
	}
	return m
}

// ============================================================================
//                              启动与关闭
// ============================================================================

// Start 启动后台任务：清理扫描与带宽调整转发
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(1)
	go s.cleanupLoop(loopCtx)

	if s.bwOn && s.bandwidth != nil {
		s.wg.Add(1)
		go s.adjustLoop(loopCtx)
	}

	s.logger.Info("中继服务器已启动",
		"cleanup_interval", time.Duration(s.cfg.CleanupInterval),
		"idle_timeout", time.Duration(s.cfg.IdleTimeout))
	return nil
}

// Shutdown 停止后台任务并终止所有会话
func (s *Server) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrNotRunning
	}
	s.cancel()
	s.wg.Wait()

	s.mu.RLock()
	ids := make([]types.SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var errMu sync.Mutex
	var errs error
	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := s.Terminate(id); err != nil && err != ErrSessionMissing {
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("中继服务器已关闭", "terminated", len(ids))
	return errs
}
