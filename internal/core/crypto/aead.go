package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// nonceSize GCM nonce 长度（96 位）
const nonceSize = 12

// tagSize GCM 认证标签长度（128 位）
const tagSize = 16

// streamHeaderSize 流载荷头部长度（小端序 seq）
const streamHeaderSize = 8

// ============================================================================
//                              控制消息 AEAD
// ============================================================================

// EncryptMessage 加密控制消息
//
// nonce 为新鲜随机值，容忍乱序投递。
// metadata 明文携带，但与会话 ID 一起作为 AAD 绑定进认证标签。
func (m *Manager) EncryptMessage(sessionID types.SessionID, plaintext, metadata []byte) (*types.EncryptedEnvelope, error) {
	key, keyID, err := m.sessionKeyMaterial(sessionID)
	if err != nil {
		return nil, err
	}
	defer zeroize(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, messageAAD(sessionID, metadata))

	return &types.EncryptedEnvelope{
		MessageID:  uuid.NewString(),
		SessionID:  sessionID,
		KeyID:      keyID,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Timestamp:  time.Now(),
		Metadata:   append([]byte(nil), metadata...),
	}, nil
}

// DecryptMessage 解密控制消息
//
// 完整性失败对信封是致命的：不输出明文，不暴露部分数据。
func (m *Manager) DecryptMessage(env *types.EncryptedEnvelope) (plaintext, metadata []byte, err error) {
	key, _, err := m.sessionKeyMaterial(env.SessionID)
	if err != nil {
		return nil, nil, err
	}
	defer zeroize(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	if len(env.Nonce) != nonceSize {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err = aead.Open(nil, env.Nonce, env.Ciphertext, messageAAD(env.SessionID, env.Metadata))
	if err != nil {
		return nil, nil, ErrIntegrityFailed
	}
	return plaintext, env.Metadata, nil
}

// messageAAD 控制消息的关联数据：会话 ID ‖ 元数据
func messageAAD(sessionID types.SessionID, metadata []byte) []byte {
	aad := make([]byte, 0, len(sessionID)+len(metadata))
	aad = append(aad, sessionID...)
	aad = append(aad, metadata...)
	return aad
}

// ============================================================================
//                              流式 AEAD
// ============================================================================

// EncryptStream 加密流式数据块
//
// nonce 确定性重建：4 个零字节 ‖ 小端序 seq。
// 输出格式：seq(8, 小端序) ‖ 密文 ‖ 标签(16)。
func (m *Manager) EncryptStream(sessionID types.SessionID, seq uint64, payload []byte) ([]byte, error) {
	key, _, err := m.sessionKeyMaterial(sessionID)
	if err != nil {
		return nil, err
	}
	defer zeroize(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, streamHeaderSize, streamHeaderSize+len(payload)+tagSize)
	binary.LittleEndian.PutUint64(out, seq)

	return aead.Seal(out, streamNonce(seq), payload, streamAAD(sessionID)), nil
}

// DecryptStream 解密流式数据块
//
// 输入为 seq ‖ 密文；重建 nonce 并认证。
// 接收方拒绝窗口之外（不大于已接受最大值）的序号，
// 保证单会话流内的线性顺序。
func (m *Manager) DecryptStream(sessionID types.SessionID, data []byte) (uint64, []byte, error) {
	if len(data) < streamHeaderSize+tagSize {
		return 0, nil, ErrPayloadTooShort
	}
	seq := binary.LittleEndian.Uint64(data[:streamHeaderSize])

	key, _, err := m.sessionKeyMaterial(sessionID)
	if err != nil {
		return 0, nil, err
	}
	defer zeroize(key)

	// 窗口检查先于解密：过期序号直接拒绝
	m.mu.RLock()
	st, ok := m.sessions[sessionID]
	var expected uint64
	if ok {
		expected = st.recvSeq
	}
	m.mu.RUnlock()
	if !ok {
		return 0, nil, ErrSessionMissing
	}
	if seq < expected {
		return 0, nil, ErrReplayedSequence
	}

	aead, err := newAEAD(key)
	if err != nil {
		return 0, nil, err
	}

	payload, err := aead.Open(nil, streamNonce(seq), data[streamHeaderSize:], streamAAD(sessionID))
	if err != nil {
		return 0, nil, ErrIntegrityFailed
	}

	// 认证通过后推进接收窗口
	m.mu.Lock()
	if st, ok := m.sessions[sessionID]; ok && seq >= st.recvSeq {
		st.recvSeq = seq + 1
	}
	m.mu.Unlock()

	return seq, payload, nil
}

// streamNonce 重建流 nonce：4 零字节 ‖ 小端序 seq
func streamNonce(seq uint64) []byte {
	nonce := make([]byte, nonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], seq)
	return nonce
}

// streamAAD 流数据的关联数据：会话 ID
func streamAAD(sessionID types.SessionID) []byte {
	return []byte(sessionID)
}

// ============================================================================
//                              辅助函数
// ============================================================================

// newAEAD 构造 AES-256-GCM
func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// sessionKeyMaterial 复制会话密钥材料
//
// 锁内只做复制，加解密在锁外进行。
func (m *Manager) sessionKeyMaterial(sessionID types.SessionID) ([]byte, types.KeyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, err := m.activeSessionLocked(sessionID)
	if err != nil {
		return nil, "", err
	}
	return append([]byte(nil), st.key.Key...), st.key.KeyID, nil
}
