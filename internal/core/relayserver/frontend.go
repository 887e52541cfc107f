package relayserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-deskrelay/internal/core/protocol"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// handshakeTimeout 首帧必须在此时限内到达
const handshakeTimeout = 10 * time.Second

// Frontend 控制协议前端
//
// 在控制端口上接受客户端连接，完成会话创建握手，
// 之后把心跳/激活/终止帧转成服务器操作，并把服务端
// 发起的带宽调整和终止推回对应连接。
type Frontend struct {
	server    *Server
	listeners *protocol.Listeners
	logger    *slog.Logger

	mu    sync.RWMutex
	conns map[types.SessionID]protocol.FrameConn

	running int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFrontend 创建控制协议前端
func NewFrontend(s *Server, listeners *protocol.Listeners) *Frontend {
	return &Frontend{
		server:    s,
		listeners: listeners,
		logger:    logger.Logger("relayserver.frontend"),
		conns:     make(map[types.SessionID]protocol.FrameConn),
	}
}

// Start 启动接受循环并注册推送回调
func (f *Frontend) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.running, 0, 1) {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel

	f.server.setNotifier(f.pushAdjustment, f.pushTerminate)

	for _, ln := range f.listeners.All() {
		ln := ln
		f.wg.Add(1)
		go f.acceptLoop(loopCtx, ln)
	}

	f.logger.Info("控制协议前端已启动")
	return nil
}

// Stop 停止前端并关闭全部连接
func (f *Frontend) Stop() error {
	if !atomic.CompareAndSwapInt32(&f.running, 1, 0) {
		return ErrNotRunning
	}
	f.cancel()
	f.server.setNotifier(nil, nil)

	f.mu.Lock()
	var err error
	for id, conn := range f.conns {
		err = multierr.Append(err, conn.Close())
		delete(f.conns, id)
	}
	f.mu.Unlock()

	f.wg.Wait()
	return err
}

// acceptLoop 单个监听器的接受循环
func (f *Frontend) acceptLoop(ctx context.Context, ln protocol.Listener) {
	defer f.wg.Done()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, protocol.ErrListenerClosed) {
				return
			}
			f.logger.Warn("接受连接失败", "error", err)
			continue
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.handleConn(ctx, conn)
		}()
	}
}

// handleConn 处理一条客户端连接的完整生命周期
func (f *Frontend) handleConn(ctx context.Context, conn protocol.FrameConn) {
	defer conn.Close()

	sessionID, err := f.handshake(ctx, conn)
	if err != nil {
		f.logger.Warn("握手失败", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	f.mu.Lock()
	f.conns[sessionID] = conn
	f.mu.Unlock()

	f.serve(ctx, sessionID, conn)
}

// handshake 处理首帧会话创建请求
func (f *Frontend) handshake(ctx context.Context, conn protocol.FrameConn) (types.SessionID, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	frame, err := conn.ReadFrame()
	if err != nil {
		return "", err
	}
	_ = conn.SetReadDeadline(time.Time{})

	if frame.Type != protocol.MsgSessionCreateReq {
		f.reject(conn, "unexpected_message", "expected session create request")
		return "", protocol.ErrUnexpectedMessage
	}

	var req protocol.SessionCreateRequest
	if err := protocol.DecodePayload(frame, &req); err != nil {
		f.reject(conn, "malformed_request", err.Error())
		return "", err
	}

	clientIP := req.ClientAddr
	if clientIP == "" {
		clientIP = conn.RemoteAddr().String()
	}
	if host, _, splitErr := net.SplitHostPort(clientIP); splitErr == nil {
		clientIP = host
	}

	desc, err := f.server.CreateSession(ctx, clientIP, req.RequestedMbps, req.QoS)
	if err != nil {
		f.reject(conn, "create_failed", err.Error())
		return "", err
	}

	sk, err := f.server.engine.EstablishSession(desc.ID, req.ClientPublicKey)
	if err != nil {
		_ = f.server.Terminate(desc.ID)
		f.reject(conn, "key_agreement_failed", err.Error())
		return "", err
	}
	pub, err := f.server.engine.CurrentPublicKey()
	if err != nil {
		_ = f.server.Terminate(desc.ID)
		return "", err
	}

	resp := protocol.SessionCreateResponse{
		SessionID:       desc.ID,
		NodeID:          desc.NodeID,
		ServerPublicKey: pub,
		Salt:            sk.Salt,
	}
	if desc.Routing != nil {
		resp.Region = desc.Routing.RegionID
	}
	if desc.Allocation != nil {
		resp.AllocatedMbps = desc.Allocation.AllocatedMbps
	}

	out, err := protocol.NewFrame(protocol.MsgSessionCreateResp, &resp)
	if err != nil {
		_ = f.server.Terminate(desc.ID)
		return "", err
	}
	if err := conn.WriteFrame(out); err != nil {
		_ = f.server.Terminate(desc.ID)
		return "", err
	}

	f.logger.Info("客户端握手完成",
		"session_id", desc.ID.ShortString(),
		"client_id", req.ClientID,
		"remote", conn.RemoteAddr())
	return desc.ID, nil
}

// serve 握手后的帧循环
func (f *Frontend) serve(ctx context.Context, sessionID types.SessionID, conn protocol.FrameConn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			// 连接断开：会话降级为 Disconnected，等清理扫描回收
			if f.deregister(sessionID) && ctx.Err() == nil {
				f.server.markDisconnected(sessionID)
				f.logger.Debug("连接断开",
					"session_id", sessionID.ShortString(), "error", err)
			}
			return
		}

		if done := f.handleFrame(sessionID, conn, frame); done {
			return
		}
	}
}

// handleFrame 处理一帧；返回 true 表示连接应当结束
func (f *Frontend) handleFrame(sessionID types.SessionID, conn protocol.FrameConn, frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.MsgSessionActivate:
		var msg protocol.SessionActivate
		if err := protocol.OpenFrame(f.server.engine, frame, sessionID, &msg); err != nil {
			f.reject(conn, "unsealed_failed", err.Error())
			return false
		}
		if err := f.server.Activate(sessionID); err != nil && !errors.Is(err, ErrInvalidTransition) {
			f.logger.Warn("激活会话失败",
				"session_id", sessionID.ShortString(), "error", err)
		}

	case protocol.MsgSessionPing:
		var msg protocol.SessionPing
		if err := protocol.OpenFrame(f.server.engine, frame, sessionID, &msg); err != nil {
			f.reject(conn, "unsealed_failed", err.Error())
			return false
		}
		_ = f.server.UpdateActivity(sessionID)

	case protocol.MsgSessionTerminate:
		var msg protocol.SessionTerminate
		if err := protocol.OpenFrame(f.server.engine, frame, sessionID, &msg); err != nil {
			f.reject(conn, "unsealed_failed", err.Error())
			return false
		}
		f.deregister(sessionID)
		if err := f.server.Terminate(sessionID); err != nil && !errors.Is(err, ErrSessionMissing) {
			f.logger.Warn("终止会话失败",
				"session_id", sessionID.ShortString(), "error", err)
		}
		return true

	case protocol.MsgStreamData, protocol.MsgTransferOffer,
		protocol.MsgTransferChunk, protocol.MsgTransferComplete:
		// 数据面帧只作为活动信号；转发由节点数据面承担
		_ = f.server.UpdateActivity(sessionID)

	default:
		f.reject(conn, "unexpected_message", frame.Type.String())
	}
	return false
}

// pushAdjustment 把带宽调整推给客户端
func (f *Frontend) pushAdjustment(adj types.Adjustment) {
	f.mu.RLock()
	conn, ok := f.conns[adj.SessionID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	frame, err := protocol.SealFrame(f.server.engine, adj.SessionID,
		protocol.MsgBandwidthAdjust, &protocol.BandwidthAdjust{
			SessionID: adj.SessionID,
			OldMbps:   adj.OldMbps,
			NewMbps:   adj.NewMbps,
			Reason:    adj.Reason.String(),
		})
	if err != nil {
		f.logger.Warn("封装带宽调整失败",
			"session_id", adj.SessionID.ShortString(), "error", err)
		return
	}
	if err := conn.WriteFrame(frame); err != nil {
		f.logger.Warn("推送带宽调整失败",
			"session_id", adj.SessionID.ShortString(), "error", err)
	}
}

// pushTerminate 把服务端发起的终止推给客户端并断开连接
func (f *Frontend) pushTerminate(sessionID types.SessionID) {
	f.mu.Lock()
	conn, ok := f.conns[sessionID]
	delete(f.conns, sessionID)
	f.mu.Unlock()
	if !ok {
		return
	}

	frame, err := protocol.SealFrame(f.server.engine, sessionID,
		protocol.MsgSessionTerminate, &protocol.SessionTerminate{
			SessionID: sessionID,
			Reason:    "terminated by server",
		})
	if err == nil {
		_ = conn.WriteFrame(frame)
	}
	_ = conn.Close()
}

// reject 发送错误通知（尽力而为）
func (f *Frontend) reject(conn protocol.FrameConn, kind, message string) {
	frame, err := protocol.NewFrame(protocol.MsgError, &protocol.ErrorNotice{
		Kind:    kind,
		Message: message,
	})
	if err != nil {
		return
	}
	_ = conn.WriteFrame(frame)
}

// deregister 移除连接登记；返回是否确实登记过
func (f *Frontend) deregister(sessionID types.SessionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[sessionID]; !ok {
		return false
	}
	delete(f.conns, sessionID)
	return true
}
