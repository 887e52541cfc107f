package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

var log = logger.Logger("crypto")

// hkdfInfoLabel HKDF 派生的固定 info 标签
const hkdfInfoLabel = "deskrelay/session-key/v1"

// sessionKeySize 对称密钥长度（AES-256）
const sessionKeySize = 32

// saltSize HKDF 盐长度
const saltSize = 32

// ============================================================================
//                              sessionState 会话密钥状态
// ============================================================================

// sessionState 单个会话的加密状态
type sessionState struct {
	key *types.SessionKey

	// nextSeq 发送方向的下一个流序号
	nextSeq uint64

	// recvSeq 接收方向最后接受的序号 + 1（0 表示尚未收到）
	recvSeq uint64

	// rotationFlag 序号接近耗尽，需要轮换
	rotationFlag bool
}

// ============================================================================
//                              Manager 实现
// ============================================================================

// Manager 加密引擎实现
//
// 独占持有身份密钥存储和会话密钥存储。
// 所有共享状态由读写锁保护，锁不跨越任何 I/O 持有。
type Manager struct {
	cfg config.CryptoConfig

	mu sync.RWMutex

	// current 当前身份密钥对
	current *types.KeyPair

	// identities 所有身份密钥对（含已轮换的旧密钥）
	identities map[types.KeyID]*types.KeyPair

	// sessions 会话密钥表
	sessions map[types.SessionID]*sessionState

	// 轮换循环
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// 确保实现接口
var _ cryptocore.Engine = (*Manager)(nil)

// NewManager 创建加密引擎
func NewManager(cfg config.CryptoConfig) *Manager {
	return &Manager{
		cfg:        cfg,
		identities: make(map[types.KeyID]*types.KeyPair),
		sessions:   make(map[types.SessionID]*sessionState),
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动密钥轮换循环
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return nil // 已启动
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	m.wg.Add(1)
	go m.rotationLoop()

	log.Info("加密引擎已启动",
		"identity_lifetime", m.cfg.IdentityKeyLifetime.Duration(),
		"rotation_interval", m.cfg.KeyRotationInterval.Duration())
	return nil
}

// Stop 停止轮换循环
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	log.Info("加密引擎已停止")
	return nil
}

// rotationLoop 密钥轮换循环
//
// 轮换错误只记录日志，不影响在途操作；上一个密钥在
// 轮换成功前保持当前。
func (m *Manager) rotationLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.KeyRotationInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.rotateIfDue()
			m.expireSessions()
		}
	}
}

// rotateIfDue 在身份过期或会话序号耗尽时轮换
func (m *Manager) rotateIfDue() {
	m.mu.RLock()
	due := m.current == nil || m.current.IsExpired(time.Now())
	if !due {
		for _, st := range m.sessions {
			if st.rotationFlag {
				due = true
				break
			}
		}
	}
	m.mu.RUnlock()

	if !due {
		return
	}

	if _, err := m.RotateIdentity(); err != nil {
		log.Error("身份密钥轮换失败，保留旧密钥", "err", err)
	}
}

// expireSessions 过期并清除到期的会话密钥
func (m *Manager) expireSessions() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, st := range m.sessions {
		if st.key.State == types.KeyActive && st.key.IsExpired(now) {
			st.key.State = types.KeyExpired
			zeroize(st.key.Key)
			st.key.State = types.KeyPurged
			delete(m.sessions, id)
			log.Debug("会话密钥已过期清除", "session", id.ShortString())
		}
	}

	m.pruneIdentitiesLocked(now)
}

// pruneIdentitiesLocked 清除过期且无引用的身份密钥对
//
// 调用方必须持有写锁。
func (m *Manager) pruneIdentitiesLocked(now time.Time) {
	referenced := make(map[types.KeyID]bool, len(m.sessions))
	for _, st := range m.sessions {
		referenced[st.key.KeyID] = true
	}

	for id, kp := range m.identities {
		if m.current != nil && id == m.current.ID {
			continue
		}
		if kp.IsExpired(now) && !referenced[id] {
			zeroize(kp.Private)
			delete(m.identities, id)
			log.Debug("清除过期身份密钥对", "key", id)
		}
	}
}

// ============================================================================
//                              身份管理
// ============================================================================

// GenerateIdentity 生成身份密钥对
func (m *Manager) GenerateIdentity() (*types.KeyPair, error) {
	kp, err := m.newKeyPair()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.identities[kp.ID] = kp
	if m.current == nil {
		m.current = kp
	}
	m.mu.Unlock()

	log.Info("生成身份密钥对", "key", kp.ID, "expires", kp.ExpiresAt)
	return cloneKeyPairPublic(kp), nil
}

// newKeyPair 生成一对新的 X25519 密钥
func (m *Manager) newKeyPair() (*types.KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	now := time.Now()
	return &types.KeyPair{
		ID:        types.NewKeyID(),
		Public:    pub,
		Private:   priv,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.IdentityKeyLifetime.Duration()),
	}, nil
}

// CurrentPublicKey 返回当前身份的公钥
func (m *Manager) CurrentPublicKey() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNoIdentity
	}
	return append([]byte(nil), m.current.Public...), nil
}

// RotateIdentity 生成新身份并设为当前
func (m *Manager) RotateIdentity() (*types.KeyPair, error) {
	kp, err := m.newKeyPair()
	if err != nil {
		return nil, fmt.Errorf("rotate identity: %w", err)
	}

	m.mu.Lock()
	m.identities[kp.ID] = kp
	m.current = kp
	for _, st := range m.sessions {
		st.rotationFlag = false
	}
	m.pruneIdentitiesLocked(time.Now())
	m.mu.Unlock()

	log.Info("身份密钥已轮换", "key", kp.ID)
	return cloneKeyPairPublic(kp), nil
}

// ============================================================================
//                              会话密钥
// ============================================================================

// EstablishSession 与对端公钥协商会话密钥
//
// 发起方入口：生成新鲜随机盐。盐随创建响应传给对端，
// 对端用 EstablishSessionWithSalt 派生同一份密钥。
func (m *Manager) EstablishSession(sessionID types.SessionID, peerPublic []byte) (*types.SessionKey, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return m.EstablishSessionWithSalt(sessionID, peerPublic, salt)
}

// EstablishSessionWithSalt 以给定盐与对端公钥协商会话密钥
//
// 应答方入口：采用发起方下发的盐，使两端派生出同一份
// 对称密钥。
func (m *Manager) EstablishSessionWithSalt(sessionID types.SessionID, peerPublic, salt []byte) (*types.SessionKey, error) {
	if len(peerPublic) != curve25519.PointSize {
		return nil, ErrInvalidPeerKey
	}
	if len(salt) != saltSize {
		return nil, ErrInvalidSalt
	}

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil {
		return nil, ErrNoIdentity
	}

	shared, err := curve25519.X25519(current.Private, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}

	// HKDF-SHA256 派生：盐使派生结果与 DH 共享密钥解耦，
	// 单会话泄露无法还原其他会话
	keyMaterial := make([]byte, sessionKeySize)
	kdf := hkdf.New(sha256.New, shared, salt, []byte(hkdfInfoLabel))
	if _, err := io.ReadFull(kdf, keyMaterial); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	zeroize(shared)

	now := time.Now()
	sk := &types.SessionKey{
		SessionID: sessionID,
		KeyID:     current.ID,
		Key:       keyMaterial,
		Salt:      salt,
		State:     types.KeyPending,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionKeyTTL.Duration()),
	}

	m.mu.Lock()
	sk.State = types.KeyActive
	m.sessions[sessionID] = &sessionState{key: sk}
	m.mu.Unlock()

	log.Debug("会话密钥已建立",
		"session", sessionID.ShortString(),
		"key", current.ID,
		"expires", sk.ExpiresAt)

	return cloneSessionKeyInfo(sk), nil
}

// RevokeSession 立即擦除会话密钥
func (m *Manager) RevokeSession(sessionID types.SessionID) {
	m.mu.Lock()
	if st, ok := m.sessions[sessionID]; ok {
		zeroize(st.key.Key)
		st.key.State = types.KeyPurged
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	log.Debug("会话密钥已撤销", "session", sessionID.ShortString())
}

// SessionKeyInfo 返回会话密钥元数据（不含密钥材料）
func (m *Manager) SessionKeyInfo(sessionID types.SessionID) (*types.SessionKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return cloneSessionKeyInfo(st.key), true
}

// activeSession 返回可用于加解密的会话状态
//
// 调用方必须持有读锁或写锁。
func (m *Manager) activeSessionLocked(sessionID types.SessionID) (*sessionState, error) {
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionMissing
	}
	if st.key.IsExpired(time.Now()) {
		return nil, ErrSessionExpired
	}
	if !st.key.State.CanEncrypt() {
		return nil, ErrKeyNotActive
	}
	return st, nil
}

// NextStreamSeq 为会话领取下一个流序号
func (m *Manager) NextStreamSeq(sessionID types.SessionID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.activeSessionLocked(sessionID)
	if err != nil {
		return 0, err
	}

	if st.nextSeq >= math.MaxUint64-1 {
		st.rotationFlag = true
		return 0, ErrSequenceExhausted
	}

	seq := st.nextSeq
	st.nextSeq++

	// 提前标记轮换，留出余量
	if st.nextSeq >= math.MaxUint64-(1<<16) {
		st.rotationFlag = true
	}
	return seq, nil
}

// ============================================================================
//                              辅助函数
// ============================================================================

// zeroize 擦除敏感字节
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// cloneKeyPairPublic 返回不含私钥的密钥对拷贝
func cloneKeyPairPublic(kp *types.KeyPair) *types.KeyPair {
	return &types.KeyPair{
		ID:        kp.ID,
		Public:    append([]byte(nil), kp.Public...),
		CreatedAt: kp.CreatedAt,
		ExpiresAt: kp.ExpiresAt,
	}
}

// cloneSessionKeyInfo 返回不含密钥材料的会话密钥拷贝
func cloneSessionKeyInfo(sk *types.SessionKey) *types.SessionKey {
	return &types.SessionKey{
		SessionID: sk.SessionID,
		KeyID:     sk.KeyID,
		Salt:      append([]byte(nil), sk.Salt...),
		State:     sk.State,
		CreatedAt: sk.CreatedAt,
		ExpiresAt: sk.ExpiresAt,
	}
}
