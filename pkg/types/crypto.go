package types

import "time"

// ============================================================================
//                              KeyPair - 身份密钥对
// ============================================================================

// KeyPair 长期身份密钥对（X25519）
type KeyPair struct {
	// ID 密钥标识
	ID KeyID

	// Public 公钥（32 字节）
	Public []byte

	// Private 私钥（32 字节）
	Private []byte

	// CreatedAt 创建时间
	CreatedAt time.Time

	// ExpiresAt 过期时间
	ExpiresAt time.Time
}

// IsExpired 检查密钥对是否过期
func (k *KeyPair) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// ============================================================================
//                              SessionKey - 会话密钥
// ============================================================================

// SessionKey 每个远端对等方的派生对称密钥
//
// 由 X25519 临时 DH + HKDF-SHA256 派生，带随机 32 字节盐。
type SessionKey struct {
	// SessionID 绑定的会话
	SessionID SessionID

	// KeyID 派生时使用的身份密钥对
	KeyID KeyID

	// Key 对称密钥材料（32 字节，AES-256）
	Key []byte

	// Salt HKDF 盐（32 字节）
	Salt []byte

	// State 密钥状态
	State KeyState

	// CreatedAt 创建时间
	CreatedAt time.Time

	// ExpiresAt 过期时间
	ExpiresAt time.Time
}

// IsExpired 检查会话密钥是否过期
func (k *SessionKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// ============================================================================
//                              EncryptedEnvelope - 加密信封
// ============================================================================

// EncryptedEnvelope 控制消息的加密形式
//
// Ciphertext 末尾包含 128 位 GCM 认证标签（Go AEAD 惯例）。
// Metadata 以明文携带，同时作为 AAD 绑定进认证标签，
// 篡改任意一方都会导致解密失败。
type EncryptedEnvelope struct {
	// MessageID 消息标识
	MessageID string

	// SessionID 会话标识
	SessionID SessionID

	// KeyID 加密使用的密钥
	KeyID KeyID

	// Nonce 96 位随机 nonce
	Nonce []byte

	// Ciphertext 密文（含认证标签）
	Ciphertext []byte

	// Timestamp 加密时间
	Timestamp time.Time

	// Metadata 不透明关联元数据（明文携带，AAD 绑定）
	Metadata []byte
}
