// Package transfer 定义文件传输管道接口
package transfer

import (
	"context"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// ChunkSink 加密块的出口
//
// 发送管道把每个加密块写入 Sink；实现通常把块
// 封装为 TransferChunk 帧发往中继。
type ChunkSink interface {
	// WriteChunk 写出一个加密块
	WriteChunk(ctx context.Context, chunk []byte) error
}

// ChunkSource 加密块的入口
//
// 接收管道从 Source 逐块读取；流结束返回 io.EOF。
type ChunkSource interface {
	// ReadChunk 读入下一个加密块
	ReadChunk(ctx context.Context) ([]byte, error)
}

// Pipeline 文件传输管道
//
// 给定本地文件和会话，在加密引擎的 AEAD 之下可靠、
// 可校验、带进度反馈地投递字节；接收方向运行同一管道的逆过程。
type Pipeline interface {
	// Send 启动发送
	//
	// size > max_file_size 时在此被拒绝。
	// 返回传输 ID；传输在后台进行。
	Send(ctx context.Context, sessionID types.SessionID, path string, sink ChunkSink) (types.TransferID, error)

	// Receive 启动接收
	//
	// 按描述符在下载目录创建目标文件，完成时校验 SHA-256。
	Receive(ctx context.Context, sessionID types.SessionID, desc types.FileDescriptor, source ChunkSource) (types.TransferID, error)

	// Pause 暂停传输（仅 InProgress → Paused）
	Pause(id types.TransferID) error

	// Resume 恢复传输（Paused → InProgress）
	Resume(id types.TransferID) error

	// Cancel 取消传输（任何存活状态均可，终止）
	Cancel(id types.TransferID) error

	// Transfer 返回传输状态快照
	Transfer(id types.TransferID) (*types.FileTransfer, bool)

	// Transfers 返回所有传输的快照
	Transfers() []*types.FileTransfer

	// SetRateLimit 设置会话的传输速率上限（字节/秒，0 解除）
	//
	// 这是带宽调整事件的背压挂钩。
	SetRateLimit(sessionID types.SessionID, bytesPerSec float64)

	// Descriptor 返回发送完成后带最终校验和的描述符
	Descriptor(id types.TransferID) (*types.FileDescriptor, bool)
}
