package crypto

import "errors"

var (
	// ErrNoIdentity 没有当前身份密钥对
	ErrNoIdentity = errors.New("no current identity key pair")

	// ErrSessionMissing 会话密钥不存在
	ErrSessionMissing = errors.New("session key missing")

	// ErrSessionExpired 会话密钥已过期
	ErrSessionExpired = errors.New("session key expired")

	// ErrKeyNotActive 会话密钥不在 Active 状态
	ErrKeyNotActive = errors.New("session key not active")

	// ErrIntegrityFailed 完整性校验失败
	ErrIntegrityFailed = errors.New("integrity check failed")

	// ErrInvalidPeerKey 对端公钥非法
	ErrInvalidPeerKey = errors.New("invalid peer public key")

	// ErrInvalidSalt 密钥派生盐非法
	ErrInvalidSalt = errors.New("invalid key derivation salt")

	// ErrSequenceExhausted 流序号接近耗尽，必须轮换密钥
	ErrSequenceExhausted = errors.New("stream sequence space exhausted, key rotation required")

	// ErrReplayedSequence 流序号落在接收窗口之外
	ErrReplayedSequence = errors.New("stream sequence out of window")

	// ErrPayloadTooShort 流载荷长度不足
	ErrPayloadTooShort = errors.New("stream payload too short")
)
