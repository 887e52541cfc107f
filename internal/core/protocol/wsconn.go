package protocol

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsFrameConn WebSocket 上的帧连接
//
// WebSocket 自带消息边界，每条二进制消息恰好承载一个
// CBOR 帧体，不再附加长度前缀。
type wsFrameConn struct {
	conn     *websocket.Conn
	maxBytes int

	writeMu sync.Mutex
	closed  int32
}

var _ FrameConn = (*wsFrameConn)(nil)

// NewWebSocketFrameConn 把一条 WebSocket 连接包装为帧连接
func NewWebSocketFrameConn(conn *websocket.Conn, maxBytes int) FrameConn {
	if maxBytes > 0 {
		conn.SetReadLimit(int64(maxBytes))
	}
	return &wsFrameConn{conn: conn, maxBytes: maxBytes}
}

// ReadFrame 读取下一帧
func (c *wsFrameConn) ReadFrame() (*Frame, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, ErrConnClosed
	}

	for {
		msgType, body, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(body)
	}
}

// WriteFrame 写出一帧
func (c *wsFrameConn) WriteFrame(f *Frame) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnClosed
	}

	body, err := Marshal(f)
	if err != nil {
		return err
	}
	if c.maxBytes > 0 && len(body) > c.maxBytes {
		return ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, body)
}

// SetReadDeadline 设置读截止时间
func (c *wsFrameConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr 返回对端地址
func (c *wsFrameConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close 关闭连接
func (c *wsFrameConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.conn.Close()
}
