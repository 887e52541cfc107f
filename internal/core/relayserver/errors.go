package relayserver

import "errors"

var (
	// ErrSessionMissing 会话不存在
	ErrSessionMissing = errors.New("session not found")

	// ErrInvalidTransition 非法的会话状态迁移
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrAlreadyRunning 服务器已在运行
	ErrAlreadyRunning = errors.New("relay server already running")

	// ErrNotRunning 服务器未运行
	ErrNotRunning = errors.New("relay server not running")
)
