package protocol

import "errors"

var (
	// ErrFrameTooLarge 帧超过大小上限
	ErrFrameTooLarge = errors.New("frame exceeds size limit")

	// ErrMalformedFrame 帧无法解码
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnexpectedMessage 消息类型与当前状态不符
	ErrUnexpectedMessage = errors.New("unexpected message type")

	// ErrEnvelopeMismatch 信封的会话/类型绑定与帧不符
	ErrEnvelopeMismatch = errors.New("envelope binding mismatch")

	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")
)
