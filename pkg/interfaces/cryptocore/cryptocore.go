// Package cryptocore 定义端到端加密引擎接口
package cryptocore

import (
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// Engine 端到端加密引擎
//
// 负责不可信中继两侧对等方之间所有载荷的机密性、
// 完整性和前向保密：
//
//   - 身份：X25519 密钥对，定时轮换
//   - 会话密钥：临时 DH + HKDF-SHA256（随机 32 字节盐）
//   - AEAD：AES-256-GCM，96 位 nonce，128 位标签
//
// 所有完整性失败对信封都是致命的：不输出明文，不暴露部分数据。
type Engine interface {
	// GenerateIdentity 生成身份密钥对并记录创建/过期时间
	GenerateIdentity() (*types.KeyPair, error)

	// CurrentPublicKey 返回当前身份的公钥；无身份时失败
	CurrentPublicKey() ([]byte, error)

	// EstablishSession 与对端公钥协商会话密钥
	//
	// 发起方入口：生成新鲜随机盐。无当前身份时失败。
	EstablishSession(sessionID types.SessionID, peerPublic []byte) (*types.SessionKey, error)

	// EstablishSessionWithSalt 以给定盐与对端公钥协商会话密钥
	//
	// 应答方入口：采用发起方下发的盐，使两端派生出同一份密钥。
	EstablishSessionWithSalt(sessionID types.SessionID, peerPublic, salt []byte) (*types.SessionKey, error)

	// EncryptMessage 加密控制消息
	//
	// nonce 为新鲜随机值；metadata 明文携带并作为 AAD 绑定。
	EncryptMessage(sessionID types.SessionID, plaintext, metadata []byte) (*types.EncryptedEnvelope, error)

	// DecryptMessage 解密控制消息
	//
	// 失败返回 ErrSessionMissing / ErrSessionExpired / ErrIntegrityFailed。
	DecryptMessage(env *types.EncryptedEnvelope) (plaintext, metadata []byte, err error)

	// EncryptStream 加密流式数据块
	//
	// nonce 为确定性：4 个零字节 ‖ 小端序 seq。
	// seq 在同一会话密钥下绝不允许重复；输出为 seq ‖ 密文。
	EncryptStream(sessionID types.SessionID, seq uint64, payload []byte) ([]byte, error)

	// DecryptStream 解密流式数据块
	//
	// 输入为 seq ‖ 密文；重建 nonce 并认证。
	DecryptStream(sessionID types.SessionID, data []byte) (seq uint64, payload []byte, err error)

	// NextStreamSeq 为会话领取下一个流序号
	//
	// 序号接近耗尽时返回 ErrSequenceExhausted，调用方必须轮换密钥。
	NextStreamSeq(sessionID types.SessionID) (uint64, error)

	// RotateIdentity 生成新身份并设为当前
	//
	// 旧密钥对在仍被存活会话引用期间保留；
	// 过期且无引用的密钥对被清除。
	RotateIdentity() (*types.KeyPair, error)

	// RevokeSession 立即擦除会话密钥
	RevokeSession(sessionID types.SessionID)

	// SessionKeyInfo 返回会话密钥元数据（不含密钥材料）
	SessionKeyInfo(sessionID types.SessionID) (*types.SessionKey, bool)
}
