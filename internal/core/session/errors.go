package session

import "errors"

var (
	// ErrAlreadyConnected 控制器已连接
	ErrAlreadyConnected = errors.New("controller already connected")

	// ErrNotConnected 控制器未连接
	ErrNotConnected = errors.New("controller not connected")

	// ErrClosed 控制器已关闭
	ErrClosed = errors.New("controller closed")

	// ErrHandshakeFailed 会话创建握手失败
	ErrHandshakeFailed = errors.New("session handshake failed")

	// ErrReconnectFailed 重连尝试耗尽
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")

	// ErrInvalidTransition 非法的会话状态迁移
	ErrInvalidTransition = errors.New("invalid session state transition")
)
