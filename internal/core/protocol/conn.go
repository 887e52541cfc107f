package protocol

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// FrameConn 一条可靠的帧化控制连接
//
// ReadFrame 只能被单个 goroutine 调用；
// WriteFrame 可并发调用，写入按帧串行。
type FrameConn interface {
	// ReadFrame 读取下一帧
	ReadFrame() (*Frame, error)

	// WriteFrame 写出一帧
	WriteFrame(f *Frame) error

	// SetReadDeadline 设置读截止时间
	SetReadDeadline(t time.Time) error

	// RemoteAddr 返回对端地址
	RemoteAddr() net.Addr

	// Close 关闭连接
	Close() error
}

// ============================================================================
//                              TCP 帧连接
// ============================================================================

// tcpFrameConn net.Conn 上的帧连接
type tcpFrameConn struct {
	conn     net.Conn
	reader   *bufio.Reader
	maxBytes int

	writeMu sync.Mutex
	closed  int32
}

var _ FrameConn = (*tcpFrameConn)(nil)

// NewFrameConn 把一条 net.Conn 包装为帧连接
func NewFrameConn(conn net.Conn, maxBytes int) FrameConn {
	return &tcpFrameConn{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		maxBytes: maxBytes,
	}
}

// ReadFrame 读取下一帧
func (c *tcpFrameConn) ReadFrame() (*Frame, error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return nil, ErrConnClosed
	}
	return ReadFrame(c.reader, c.maxBytes)
}

// WriteFrame 写出一帧
func (c *tcpFrameConn) WriteFrame(f *Frame) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, f, c.maxBytes)
}

// SetReadDeadline 设置读截止时间
func (c *tcpFrameConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// RemoteAddr 返回对端地址
func (c *tcpFrameConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close 关闭连接
func (c *tcpFrameConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.conn.Close()
}
