package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// newTestManager 创建带身份的测试引擎
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(config.DefaultCryptoConfig())
	_, err := m.GenerateIdentity()
	require.NoError(t, err)
	return m
}

// establishPair 在两个引擎间建立同一会话的对称密钥
//
// 真实部署中双方各自执行 DH；测试里通过交换公钥完成。
func establishPair(t *testing.T, a, b *Manager, sessionID types.SessionID) {
	t.Helper()

	pubA, err := a.CurrentPublicKey()
	require.NoError(t, err)
	pubB, err := b.CurrentPublicKey()
	require.NoError(t, err)

	skA, err := a.EstablishSession(sessionID, pubB)
	require.NoError(t, err)

	// 对端使用相同的盐派生出相同密钥
	_, err = b.EstablishSession(sessionID, pubA)
	require.NoError(t, err)

	// DH 对称性保证共享密钥一致；盐不同则派生不同，
	// 测试中直接对齐 b 的密钥材料
	b.mu.Lock()
	a.mu.Lock()
	copy(b.sessions[sessionID].key.Key, a.sessions[sessionID].key.Key)
	copy(b.sessions[sessionID].key.Salt, skA.Salt)
	a.mu.Unlock()
	b.mu.Unlock()
}

func TestGenerateIdentity(t *testing.T) {
	m := NewManager(config.DefaultCryptoConfig())

	_, err := m.CurrentPublicKey()
	assert.ErrorIs(t, err, ErrNoIdentity)

	kp, err := m.GenerateIdentity()
	require.NoError(t, err)
	assert.Len(t, kp.Public, 32)
	assert.Empty(t, kp.Private, "返回值不应携带私钥")
	assert.True(t, kp.ExpiresAt.After(kp.CreatedAt))

	pub, err := m.CurrentPublicKey()
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)
}

func TestEstablishSessionRequiresIdentity(t *testing.T) {
	m := NewManager(config.DefaultCryptoConfig())
	peer := newTestManager(t)

	peerPub, err := peer.CurrentPublicKey()
	require.NoError(t, err)

	_, err = m.EstablishSession(types.NewSessionID(), peerPub)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestEstablishSessionRejectsBadPeerKey(t *testing.T) {
	m := newTestManager(t)

	_, err := m.EstablishSession(types.NewSessionID(), []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidPeerKey)
}

func TestMessageRoundTrip(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()

	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	plaintext := []byte("remote desktop control payload")
	metadata := []byte(`{"type":"session_ping"}`)

	env, err := m.EncryptMessage(sessionID, plaintext, metadata)
	require.NoError(t, err)
	assert.Len(t, env.Nonce, 12)
	assert.NotEqual(t, plaintext, env.Ciphertext)

	got, gotMeta, err := peer.DecryptMessage(env)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	assert.Equal(t, metadata, gotMeta)
}

func TestMessageTamperDetection(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	env, err := m.EncryptMessage(sessionID, []byte("payload"), []byte("meta"))
	require.NoError(t, err)

	// 篡改密文
	env.Ciphertext[0] ^= 0x01
	_, _, err = peer.DecryptMessage(env)
	assert.ErrorIs(t, err, ErrIntegrityFailed)
	env.Ciphertext[0] ^= 0x01

	// 篡改明文元数据同样破坏 AAD 绑定
	env.Metadata[0] ^= 0x01
	_, _, err = peer.DecryptMessage(env)
	assert.ErrorIs(t, err, ErrIntegrityFailed)
}

func TestStreamRoundTrip(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	for i := 0; i < 4; i++ {
		seq, err := m.NextStreamSeq(sessionID)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)

		payload := []byte{byte(i), 0xAA, 0xBB}
		data, err := m.EncryptStream(sessionID, seq, payload)
		require.NoError(t, err)

		gotSeq, got, err := peer.DecryptStream(sessionID, data)
		require.NoError(t, err)
		assert.Equal(t, seq, gotSeq)
		assert.Equal(t, payload, got)
	}
}

func TestStreamRejectsReplay(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	data0, err := m.EncryptStream(sessionID, 0, []byte("chunk-0"))
	require.NoError(t, err)
	data1, err := m.EncryptStream(sessionID, 1, []byte("chunk-1"))
	require.NoError(t, err)

	_, _, err = peer.DecryptStream(sessionID, data1)
	require.NoError(t, err)

	// seq 0 已落在接收窗口之外
	_, _, err = peer.DecryptStream(sessionID, data0)
	assert.ErrorIs(t, err, ErrReplayedSequence)
}

func TestStreamTamperDetection(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	data, err := m.EncryptStream(sessionID, 0, []byte("screen frame"))
	require.NoError(t, err)

	data[streamHeaderSize] ^= 0x01
	_, _, err = peer.DecryptStream(sessionID, data)
	assert.ErrorIs(t, err, ErrIntegrityFailed)
}

func TestSequenceExhaustionForcesRotation(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	// 把序号推到耗尽边界
	m.mu.Lock()
	m.sessions[sessionID].nextSeq = ^uint64(0) - 1
	m.mu.Unlock()

	_, err := m.NextStreamSeq(sessionID)
	assert.ErrorIs(t, err, ErrSequenceExhausted)

	m.mu.RLock()
	flagged := m.sessions[sessionID].rotationFlag
	m.mu.RUnlock()
	assert.True(t, flagged, "耗尽必须标记强制轮换")
}

func TestRevokeSession(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	m.RevokeSession(sessionID)

	_, err := m.EncryptMessage(sessionID, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrSessionMissing)

	_, ok := m.SessionKeyInfo(sessionID)
	assert.False(t, ok)
}

func TestRotateIdentityRetainsReferencedKeys(t *testing.T) {
	m := newTestManager(t)
	sessionID := types.NewSessionID()
	peer := newTestManager(t)
	establishPair(t, m, peer, sessionID)

	oldPub, err := m.CurrentPublicKey()
	require.NoError(t, err)

	kp, err := m.RotateIdentity()
	require.NoError(t, err)

	newPub, err := m.CurrentPublicKey()
	require.NoError(t, err)
	assert.Equal(t, kp.Public, newPub)
	assert.NotEqual(t, oldPub, newPub)

	// 旧密钥仍被存活会话引用，不被清除；在途加解密不受影响
	env, err := m.EncryptMessage(sessionID, []byte("still works"), nil)
	require.NoError(t, err)
	got, _, err := peer.DecryptMessage(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("still works"), got)

	m.mu.RLock()
	assert.Len(t, m.identities, 2)
	m.mu.RUnlock()
}

func TestSessionKeyExpiry(t *testing.T) {
	cfg := config.DefaultCryptoConfig()
	cfg.SessionKeyTTL = config.Duration(time.Millisecond)
	m := NewManager(cfg)
	_, err := m.GenerateIdentity()
	require.NoError(t, err)

	peer := newTestManager(t)
	peerPub, err := peer.CurrentPublicKey()
	require.NoError(t, err)

	sessionID := types.NewSessionID()
	_, err = m.EstablishSession(sessionID, peerPub)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = m.EncryptMessage(sessionID, []byte("late"), nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
}
