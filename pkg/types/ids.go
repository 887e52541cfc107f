package types

import (
	"github.com/google/uuid"
)

// ============================================================================
//                              SessionID - 会话标识
// ============================================================================

// SessionID 会话唯一标识符
//
// 128 位不透明标识，外部表示为 UUID 字符串。
// 由中继服务器在会话创建时分配。
type SessionID string

// NewSessionID 生成新的会话 ID
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// String 返回会话 ID 的字符串表示
func (id SessionID) String() string {
	return string(id)
}

// ShortString 返回会话 ID 的短字符串表示
//
// UUID 前 8 个字符，用于日志中的简短标识。
func (id SessionID) ShortString() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// IsEmpty 检查会话 ID 是否为空
func (id SessionID) IsEmpty() bool {
	return id == ""
}

// ============================================================================
//                              NodeID - 中继节点标识
// ============================================================================

// NodeID 中继节点标识符
//
// 由运维方在节点定义中指定（如 "relay-us-east-1"），
// 在整个机群内唯一。
type NodeID string

// String 返回节点 ID 的字符串表示
func (id NodeID) String() string {
	return string(id)
}

// IsEmpty 检查节点 ID 是否为空
func (id NodeID) IsEmpty() bool {
	return id == ""
}

// ============================================================================
//                              TransferID - 传输标识
// ============================================================================

// TransferID 文件传输标识符
type TransferID string

// NewTransferID 生成新的传输 ID
func NewTransferID() TransferID {
	return TransferID(uuid.NewString())
}

// String 返回传输 ID 的字符串表示
func (id TransferID) String() string {
	return string(id)
}

// ============================================================================
//                              KeyID - 密钥标识
// ============================================================================

// KeyID 身份密钥对标识符
type KeyID string

// NewKeyID 生成新的密钥 ID
func NewKeyID() KeyID {
	return KeyID(uuid.NewString())
}

// String 返回密钥 ID 的字符串表示
func (id KeyID) String() string {
	return string(id)
}
