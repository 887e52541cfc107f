package protocol

import (
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// ============================================================================
//                              会话消息
// ============================================================================

// SessionCreateRequest 会话创建请求
//
// 握手前以明文传输；ClientPublicKey 用于服务端协商会话密钥。
type SessionCreateRequest struct {
	// ClientID 客户端标识
	ClientID string `cbor:"client_id"`

	// ClientPublicKey 客户端 X25519 公钥（32 字节）
	ClientPublicKey []byte `cbor:"client_public_key"`

	// ClientAddr 客户端网络地址（ip:port 或纯 IP）
	ClientAddr string `cbor:"client_addr"`

	// QoS 请求的服务质量等级
	QoS types.QoSClass `cbor:"qos"`

	// RequestedMbps 请求带宽
	RequestedMbps float64 `cbor:"requested_mbps"`

	// GuaranteedMbps 保证带宽（≤ RequestedMbps）
	GuaranteedMbps float64 `cbor:"guaranteed_mbps"`
}

// SessionCreateResponse 会话创建响应
type SessionCreateResponse struct {
	// SessionID 新会话标识
	SessionID types.SessionID `cbor:"session_id"`

	// NodeID 分配的中继节点
	NodeID types.NodeID `cbor:"node_id"`

	// Region 解析出的客户端区域
	Region string `cbor:"region,omitempty"`

	// ServerPublicKey 服务端 X25519 公钥（32 字节）
	ServerPublicKey []byte `cbor:"server_public_key"`

	// Salt 会话密钥派生盐（32 字节）
	Salt []byte `cbor:"salt"`

	// AllocatedMbps 已分配带宽
	AllocatedMbps float64 `cbor:"allocated_mbps"`
}

// SessionActivate 会话激活
type SessionActivate struct {
	// SessionID 会话标识
	SessionID types.SessionID `cbor:"session_id"`
}

// SessionPing 会话心跳（刷新活动时间）
type SessionPing struct {
	// SessionID 会话标识
	SessionID types.SessionID `cbor:"session_id"`

	// At 客户端发送时间
	At time.Time `cbor:"at"`
}

// SessionTerminate 会话终止
type SessionTerminate struct {
	// SessionID 会话标识
	SessionID types.SessionID `cbor:"session_id"`

	// Reason 终止原因（人类可读）
	Reason string `cbor:"reason,omitempty"`
}

// ============================================================================
//                              带宽消息
// ============================================================================

// BandwidthAdjust 带宽调整通知（服务端 → 客户端）
type BandwidthAdjust struct {
	// SessionID 受影响的会话
	SessionID types.SessionID `cbor:"session_id"`

	// OldMbps 调整前带宽
	OldMbps float64 `cbor:"old_mbps"`

	// NewMbps 调整后带宽
	NewMbps float64 `cbor:"new_mbps"`

	// Reason 调整原因
	Reason string `cbor:"reason"`
}

// ============================================================================
//                              传输与流消息
// ============================================================================

// TransferOffer 文件传输要约（携带描述符）
type TransferOffer struct {
	// SessionID 所属会话
	SessionID types.SessionID `cbor:"session_id"`

	// Descriptor 文件描述符
	Descriptor types.FileDescriptor `cbor:"descriptor"`
}

// TransferChunk 文件传输数据块
//
// Data 为流式加密输出：seq ‖ 密文 ‖ 标签。
type TransferChunk struct {
	// TransferID 传输标识
	TransferID types.TransferID `cbor:"transfer_id"`

	// Data 加密数据块
	Data []byte `cbor:"data"`
}

// TransferComplete 文件传输完成
type TransferComplete struct {
	// TransferID 传输标识
	TransferID types.TransferID `cbor:"transfer_id"`

	// Checksum 全文 SHA-256 校验和
	Checksum []byte `cbor:"checksum"`
}

// StreamData 媒体流数据
//
// Data 为流式加密输出：seq ‖ 密文 ‖ 标签。
type StreamData struct {
	// SessionID 所属会话
	SessionID types.SessionID `cbor:"session_id"`

	// Kind 媒体流类别
	Kind types.StreamKind `cbor:"kind"`

	// Data 加密数据块
	Data []byte `cbor:"data"`
}

// ============================================================================
//                              错误通知
// ============================================================================

// ErrorNotice 错误通知
//
// 只携带短错误类别和人类可读消息，不暴露内部地址或堆栈。
type ErrorNotice struct {
	// Kind 错误类别（如 "crypto"、"protocol"、"resource"）
	Kind string `cbor:"kind"`

	// Message 人类可读消息
	Message string `cbor:"message"`
}
