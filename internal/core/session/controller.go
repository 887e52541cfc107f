package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/protocol"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// Dialer 建立到中继的控制连接
type Dialer func(ctx context.Context) (protocol.FrameConn, error)

// ConnectOptions 会话创建参数
type ConnectOptions struct {
	// ClientAddr 客户端网络地址（用于地理路由）
	ClientAddr string

	// QoS 请求的服务质量等级
	QoS types.QoSClass

	// RequestedMbps 请求带宽
	RequestedMbps float64

	// GuaranteedMbps 保证带宽
	GuaranteedMbps float64
}

// Controller 端点侧会话控制器
//
// 持有一个会话的媒体流集合、加密会话引用和控制连接；
// 断线后按指数退避重连并重新握手（服务端不保留断线会话）。
type Controller struct {
	cfg      config.SessionConfig
	clientID string
	dial     Dialer
	engine   cryptocore.Engine
	pipeline transferif.Pipeline
	logger   *slog.Logger

	mu      sync.RWMutex
	state   types.SessionState
	session types.Session
	streams map[types.StreamKind]bool
	conn    protocol.FrameConn
	opts    ConnectOptions

	closed int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController 创建会话控制器
func NewController(cfg config.SessionConfig, clientID string, dial Dialer, engine cryptocore.Engine, pipeline transferif.Pipeline) *Controller {
	return &Controller{
		cfg:      cfg,
		clientID: clientID,
		dial:     dial,
		engine:   engine,
		pipeline: pipeline,
		logger:   logger.Logger("session"),
		state:    types.StateConnecting,
		streams:  make(map[types.StreamKind]bool),
	}
}

// ============================================================================
//                              连接与握手
// ============================================================================

// Connect 建立会话
//
// 完成创建握手并协商会话密钥后启动读循环与心跳。
func (c *Controller) Connect(ctx context.Context, opts ConnectOptions) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.opts = opts
	c.mu.Unlock()

	if err := c.handshake(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.wg.Add(2)
	go c.readLoop(loopCtx)
	go c.pingLoop(loopCtx)
	return nil
}

// handshake 执行会话创建握手
//
// 成功后持有新会话、已协商的会话密钥和新连接。
func (c *Controller) handshake(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	pub, err := c.engine.CurrentPublicKey()
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()

	req, err := protocol.NewFrame(protocol.MsgSessionCreateReq, &protocol.SessionCreateRequest{
		ClientID:        c.clientID,
		ClientPublicKey: pub,
		ClientAddr:      opts.ClientAddr,
		QoS:             opts.QoS,
		RequestedMbps:   opts.RequestedMbps,
		GuaranteedMbps:  opts.GuaranteedMbps,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.WriteFrame(req); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if frame.Type == protocol.MsgError {
		var notice protocol.ErrorNotice
		_ = protocol.DecodePayload(frame, &notice)
		_ = conn.Close()
		return fmt.Errorf("%w: %s: %s", ErrHandshakeFailed, notice.Kind, notice.Message)
	}
	if frame.Type != protocol.MsgSessionCreateResp {
		_ = conn.Close()
		return protocol.ErrUnexpectedMessage
	}

	var resp protocol.SessionCreateResponse
	if err := protocol.DecodePayload(frame, &resp); err != nil {
		_ = conn.Close()
		return err
	}
	// 采用服务端下发的盐派生同一份会话密钥
	if _, err := c.engine.EstablishSessionWithSalt(resp.SessionID, resp.ServerPublicKey, resp.Salt); err != nil {
		_ = conn.Close()
		return err
	}

	now := time.Now()
	c.mu.Lock()
	c.conn = conn
	c.state = types.StateConnected
	c.session = types.Session{
		ID:            resp.SessionID,
		ClientAddr:    opts.ClientAddr,
		ClientRegion:  resp.Region,
		NodeID:        resp.NodeID,
		AllocatedMbps: resp.AllocatedMbps,
		QoS:           opts.QoS,
		State:         types.StateConnected,
		CreatedAt:     now,
		LastActivity:  now,
	}
	c.mu.Unlock()

	c.logger.Info("会话已建立",
		"session_id", resp.SessionID.ShortString(),
		"node_id", resp.NodeID,
		"region", resp.Region,
		"allocated_mbps", resp.AllocatedMbps)
	return nil
}

// ============================================================================
//                              媒体流管理
// ============================================================================

// ActivateStream 激活一条媒体流
//
// 首条流把会话推入 Active。
func (c *Controller) ActivateStream(kind types.StreamKind) error {
	c.mu.Lock()

	if c.state.IsTerminal() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}

	c.streams[kind] = true
	announce := false
	if c.state != types.StateActive {
		if err := c.transitionLocked(types.StateActive); err != nil {
			delete(c.streams, kind)
			c.mu.Unlock()
			return err
		}
		announce = true
	}
	c.session.LastActivity = time.Now()
	conn := c.conn
	sessionID := c.session.ID
	c.mu.Unlock()

	// 首条流激活时通知服务端（尽力而为，心跳会兜底刷新活动）
	if announce {
		frame, err := protocol.SealFrame(c.engine, sessionID,
			protocol.MsgSessionActivate, &protocol.SessionActivate{SessionID: sessionID})
		if err == nil {
			_ = conn.WriteFrame(frame)
		}
	}
	return nil
}

// DeactivateStream 停用一条媒体流
//
// 最后一条流离开后会话回到 Idle。
func (c *Controller) DeactivateStream(kind types.StreamKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.streams, kind)
	if len(c.streams) == 0 && c.state == types.StateActive {
		return c.transitionLocked(types.StateIdle)
	}
	return nil
}

// ActiveStreams 返回当前活跃的媒体流类别
func (c *Controller) ActiveStreams() []types.StreamKind {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.StreamKind, 0, len(c.streams))
	for _, kind := range types.StreamKinds {
		if c.streams[kind] {
			out = append(out, kind)
		}
	}
	return out
}

// ============================================================================
//                              状态访问
// ============================================================================

// State 返回当前会话状态
func (c *Controller) State() types.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session 返回会话快照
func (c *Controller) Session() types.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.session
	s.State = c.state
	return s
}

// transitionLocked 执行状态迁移（须持写锁）
func (c *Controller) transitionLocked(next types.SessionState) error {
	if !c.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, next)
	}
	old := c.state
	c.state = next
	c.session.State = next

	c.logger.Debug("会话状态迁移",
		"session_id", c.session.ID.ShortString(),
		"from", old.String(),
		"to", next.String())
	return nil
}

// ============================================================================
//                              读循环与心跳
// ============================================================================

// readLoop 处理服务端下发的帧，断线时触发重连
func (c *Controller) readLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil || atomic.LoadInt32(&c.closed) == 1 {
				return
			}
			if c.State().IsTerminal() {
				return
			}
			if rErr := c.reconnect(ctx); rErr != nil {
				c.fail(rErr)
				return
			}
			continue
		}
		if done := c.handleFrame(frame); done {
			return
		}
	}
}

// handleFrame 处理一帧；返回 true 表示会话结束
func (c *Controller) handleFrame(frame *protocol.Frame) bool {
	sessionID := c.Session().ID

	switch frame.Type {
	case protocol.MsgBandwidthAdjust:
		var adj protocol.BandwidthAdjust
		if err := protocol.OpenFrame(c.engine, frame, sessionID, &adj); err != nil {
			c.logger.Warn("带宽调整帧无法解开", "error", err)
			return false
		}
		c.applyBandwidth(adj)

	case protocol.MsgSessionTerminate:
		var term protocol.SessionTerminate
		if err := protocol.OpenFrame(c.engine, frame, sessionID, &term); err != nil {
			c.logger.Warn("终止帧无法解开", "error", err)
			return false
		}
		c.logger.Info("服务端终止会话",
			"session_id", sessionID.ShortString(),
			"reason", term.Reason)
		c.shutdownLocal()
		return true

	case protocol.MsgError:
		var notice protocol.ErrorNotice
		_ = protocol.DecodePayload(frame, &notice)
		c.logger.Warn("服务端错误通知", "kind", notice.Kind, "message", notice.Message)

	default:
		c.logger.Debug("忽略帧", "type", frame.Type.String())
	}
	return false
}

// applyBandwidth 应用带宽调整：更新会话并向生产者施加限速
//
// 这是背压信号本身，必须在一个监控周期内生效。
func (c *Controller) applyBandwidth(adj protocol.BandwidthAdjust) {
	c.mu.Lock()
	c.session.AllocatedMbps = adj.NewMbps
	sessionID := c.session.ID
	c.mu.Unlock()

	// Mbps → 字节/秒
	c.pipeline.SetRateLimit(sessionID, adj.NewMbps*1e6/8)

	c.logger.Info("带宽已调整",
		"session_id", sessionID.ShortString(),
		"old_mbps", adj.OldMbps,
		"new_mbps", adj.NewMbps,
		"reason", adj.Reason)
}

// pingLoop 周期性发送心跳刷新活动时间
func (c *Controller) pingLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Duration(c.cfg.PingInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				c.logger.Debug("心跳发送失败", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Ping 发送一次心跳
func (c *Controller) Ping() error {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.session.ID
	c.session.LastActivity = time.Now()
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	frame, err := protocol.SealFrame(c.engine, sessionID, protocol.MsgSessionPing, &protocol.SessionPing{
		SessionID: sessionID,
		At:        time.Now(),
	})
	if err != nil {
		return err
	}
	return conn.WriteFrame(frame)
}

// ============================================================================
//                              重连
// ============================================================================

// reconnect 断线重连
//
// 服务端不保留断线会话，重连即重新握手得到全新会话；
// 旧会话密钥被吊销。
func (c *Controller) reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	oldID := c.session.ID
	c.mu.Unlock()

	if !oldID.IsEmpty() {
		c.engine.RevokeSession(oldID)
	}

	b := &backoff.Backoff{
		Min:    time.Duration(c.cfg.ReconnectMinBackoff),
		Max:    time.Duration(c.cfg.ReconnectMaxBackoff),
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}

		c.logger.Info("尝试重连",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxReconnectAttempts)

		if err := c.handshake(ctx); err != nil {
			c.logger.Warn("重连失败", "attempt", attempt, "error", err)
			continue
		}

		// 重新激活断线前的媒体流
		c.mu.Lock()
		if len(c.streams) > 0 {
			_ = c.transitionLocked(types.StateActive)
		}
		c.mu.Unlock()
		return nil
	}
	return ErrReconnectFailed
}

// fail 把会话推入 Error 终止态
func (c *Controller) fail(cause error) {
	c.mu.Lock()
	_ = c.transitionLocked(types.StateError)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Error("会话进入错误态", "error", cause)
}

// shutdownLocal 本地走完断开迁移并关闭连接
func (c *Controller) shutdownLocal() {
	c.mu.Lock()
	if c.state == types.StateActive || c.state == types.StateIdle ||
		c.state == types.StateConnected || c.state == types.StateConnecting {
		_ = c.transitionLocked(types.StateDisconnecting)
	}
	if c.state == types.StateDisconnecting {
		_ = c.transitionLocked(types.StateDisconnected)
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 终止会话并释放资源
//
// 尽力向服务端发送终止帧，随后吊销会话密钥并等待
// 后台循环退出。可重复调用。
func (c *Controller) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	c.mu.RLock()
	conn := c.conn
	sessionID := c.session.ID
	c.mu.RUnlock()

	if conn != nil && !sessionID.IsEmpty() {
		if frame, err := protocol.SealFrame(c.engine, sessionID, protocol.MsgSessionTerminate, &protocol.SessionTerminate{
			SessionID: sessionID,
			Reason:    "client close",
		}); err == nil {
			_ = conn.WriteFrame(frame)
		}
	}

	c.shutdownLocal()
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if !sessionID.IsEmpty() {
		c.engine.RevokeSession(sessionID)
	}
	c.logger.Info("会话控制器已关闭", "session_id", sessionID.ShortString())
	return nil
}
