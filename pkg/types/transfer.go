package types

import "time"

// ============================================================================
//                              FileDescriptor - 文件描述符
// ============================================================================

// FileDescriptor 文件传输描述符（随控制协议传输）
type FileDescriptor struct {
	// ID 传输标识
	ID TransferID

	// Name 文件名（不含路径）
	Name string

	// Size 文件大小（字节）
	Size uint64

	// MIME MIME 类型（由扩展名猜测）
	MIME string

	// Checksum 明文 SHA-256 校验和
	Checksum [32]byte

	// Compressed 是否启用压缩
	Compressed bool

	// Encrypted 是否加密（本实现恒为 true）
	Encrypted bool

	// CreatedAt 创建时间
	CreatedAt time.Time
}

// ============================================================================
//                              FileTransfer - 文件传输
// ============================================================================

// TransferProgress 传输进度
type TransferProgress struct {
	// BytesTransferred 已传输字节数
	BytesTransferred uint64

	// Total 总字节数
	Total uint64
}

// Fraction 返回进度比例（0.0 - 1.0）
func (p TransferProgress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.BytesTransferred) / float64(p.Total)
}

// FileTransfer 文件传输状态
//
// 不变量：Progress.BytesTransferred ≤ Progress.Total；
// Completed 时两者相等且接收端校验和与描述符一致。
type FileTransfer struct {
	// ID 传输标识
	ID TransferID

	// SessionID 承载传输的会话
	SessionID SessionID

	// Descriptor 文件描述符
	Descriptor FileDescriptor

	// Direction 传输方向
	Direction TransferDirection

	// Status 传输状态
	Status TransferStatus

	// Progress 传输进度
	Progress TransferProgress

	// StartedAt 开始时间
	StartedAt time.Time

	// CompletedAt 完成时间（未完成时为零值）
	CompletedAt time.Time

	// Error 失败原因（仅 Failed 状态）
	Error string
}
