package protocol

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-deskrelay/internal/util/logger"
)

// acceptBacklog 等待上层取走的连接数上限
const acceptBacklog = 64

// Listener 产出帧连接的控制端口监听器
type Listener interface {
	// Accept 取出下一条入站帧连接
	Accept(ctx context.Context) (FrameConn, error)

	// Addr 返回监听地址
	Addr() net.Addr

	// Close 关闭监听器并停止接受新连接
	Close() error
}

// ============================================================================
//                              TCP 监听器
// ============================================================================

// tcpListener TCP 控制端口监听器
type tcpListener struct {
	ln       net.Listener
	maxBytes int
	logger   *slog.Logger

	connCh chan FrameConn
	closed int32
	wg     sync.WaitGroup
}

var _ Listener = (*tcpListener)(nil)

// NewTCPListener 在 addr 上监听 TCP 控制连接
func NewTCPListener(addr string, maxBytes int) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &tcpListener{
		ln:       ln,
		maxBytes: maxBytes,
		logger:   logger.Logger("protocol"),
		connCh:   make(chan FrameConn, acceptBacklog),
	}
	l.wg.Add(1)
	go l.acceptLoop()

	l.logger.Info("TCP 控制端口已监听", "addr", ln.Addr().String())
	return l, nil
}

// acceptLoop 接受入站连接并送入通道
func (l *tcpListener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&l.closed) == 1 || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("接受连接失败", "error", err)
			continue
		}

		select {
		case l.connCh <- NewFrameConn(conn, l.maxBytes):
		default:
			// 积压已满，丢弃新连接让客户端重试
			l.logger.Warn("接受积压已满，连接被拒绝",
				"remote", conn.RemoteAddr().String())
			_ = conn.Close()
		}
	}
}

// Accept 取出下一条入站帧连接
func (l *tcpListener) Accept(ctx context.Context) (FrameConn, error) {
	select {
	case conn, ok := <-l.connCh:
		if !ok {
			return nil, ErrListenerClosed
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr 返回监听地址
func (l *tcpListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close 关闭监听器
func (l *tcpListener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	err := l.ln.Close()
	l.wg.Wait()
	close(l.connCh)

	l.logger.Info("TCP 控制端口已关闭")
	return err
}

// ============================================================================
//                              WebSocket 监听器
// ============================================================================

// wsListener WebSocket 控制端口监听器
type wsListener struct {
	ln       net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	maxBytes int
	logger   *slog.Logger

	connCh chan FrameConn
	closed int32
}

var _ Listener = (*wsListener)(nil)

// NewWebSocketListener 在 addr 上监听 WebSocket 控制连接
func NewWebSocketListener(addr string, maxBytes int) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
		},
		maxBytes: maxBytes,
		logger:   logger.Logger("protocol"),
		connCh:   make(chan FrameConn, acceptBacklog),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/control", l.handleUpgrade)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("WebSocket 服务异常退出", "error", err)
		}
	}()

	l.logger.Info("WebSocket 控制端口已监听", "addr", ln.Addr().String())
	return l, nil
}

// handleUpgrade 把 HTTP 请求升级为帧连接
func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("WebSocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}

	select {
	case l.connCh <- NewWebSocketFrameConn(conn, l.maxBytes):
	default:
		l.logger.Warn("接受积压已满，连接被拒绝", "remote", r.RemoteAddr)
		_ = conn.Close()
	}
}

// Accept 取出下一条入站帧连接
func (l *wsListener) Accept(ctx context.Context) (FrameConn, error) {
	select {
	case conn, ok := <-l.connCh:
		if !ok {
			return nil, ErrListenerClosed
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr 返回监听地址
func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close 关闭监听器
func (l *wsListener) Close() error {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := l.server.Shutdown(ctx)
	close(l.connCh)

	l.logger.Info("WebSocket 控制端口已关闭")
	return err
}
