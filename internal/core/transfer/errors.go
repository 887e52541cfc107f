package transfer

import "errors"

var (
	// ErrTransferMissing 传输不存在
	ErrTransferMissing = errors.New("transfer not found")

	// ErrFileTooLarge 文件超过大小上限
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidStateChange 非法的传输状态变迁
	ErrInvalidStateChange = errors.New("invalid transfer state change")

	// ErrChecksumMismatch 接收完成后校验和不一致
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSizeExceeded 接收字节数超出描述符声明的大小
	ErrSizeExceeded = errors.New("received bytes exceed declared size")

	// ErrChunkCorrupted 块编码损坏
	ErrChunkCorrupted = errors.New("chunk encoding corrupted")

	// ErrInvalidFileName 文件名非法
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrPipelineClosed 管道已关闭
	ErrPipelineClosed = errors.New("transfer pipeline closed")
)

// errStopped 运行循环内部哨兵：传输已被外部终止
var errStopped = errors.New("transfer stopped")
