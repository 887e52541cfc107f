package config

import "time"

// CryptoConfig 端到端加密配置
type CryptoConfig struct {
	// IdentityKeyLifetime 身份密钥对生命周期
	IdentityKeyLifetime Duration `json:"identity_key_lifetime" yaml:"identity_key_lifetime"`

	// KeyRotationInterval 身份密钥轮换检查间隔
	KeyRotationInterval Duration `json:"key_rotation_interval" yaml:"key_rotation_interval"`

	// SessionKeyTTL 会话密钥生命周期
	SessionKeyTTL Duration `json:"session_key_ttl" yaml:"session_key_ttl"`
}

// DefaultCryptoConfig 返回默认加密配置
func DefaultCryptoConfig() CryptoConfig {
	return CryptoConfig{
		IdentityKeyLifetime: Duration(24 * time.Hour),
		KeyRotationInterval: Duration(1 * time.Hour),
		SessionKeyTTL:       Duration(8 * time.Hour),
	}
}
