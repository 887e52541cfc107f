package transfer

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// defaultMIME 扩展名无法识别时的兜底类型
const defaultMIME = "application/octet-stream"

// Manager 文件传输管道实现
type Manager struct {
	cfg    config.TransferConfig
	engine cryptocore.Engine
	logger *slog.Logger

	mu        sync.RWMutex
	transfers map[types.TransferID]*task
	limiters  map[types.SessionID]*tokenBucket

	closed   int32
	lifeCtx  context.Context
	lifeStop context.CancelFunc
	wg       sync.WaitGroup
}

var _ transferif.Pipeline = (*Manager)(nil)

// NewManager 创建文件传输管道
func NewManager(cfg config.TransferConfig, engine cryptocore.Engine) *Manager {
	lifeCtx, lifeStop := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		engine:    engine,
		logger:    logger.Logger("transfer"),
		transfers: make(map[types.TransferID]*task),
		limiters:  make(map[types.SessionID]*tokenBucket),
		lifeCtx:   lifeCtx,
		lifeStop:  lifeStop,
	}
}

// loopContext 派生运行循环的上下文
//
// 调用方取消或 Close 都会终止循环，否则阻塞在
// ReadChunk/WriteChunk 里的循环会拖住 Close。
func (m *Manager) loopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	loopCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.lifeCtx, cancel)
	return loopCtx, func() {
		stop()
		cancel()
	}
}

// ============================================================================
//                              启动传输
// ============================================================================

// Send 启动发送
func (m *Manager) Send(ctx context.Context, sessionID types.SessionID, path string, sink transferif.ChunkSink) (types.TransferID, error) {
	if atomic.LoadInt32(&m.closed) == 1 {
		return "", ErrPipelineClosed
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > m.cfg.MaxFileSize {
		return "", ErrFileTooLarge
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	desc := types.FileDescriptor{
		ID:         types.NewTransferID(),
		Name:       filepath.Base(path),
		Size:       uint64(info.Size()),
		MIME:       guessMIME(path),
		Compressed: m.cfg.Compression,
		Encrypted:  true,
		CreatedAt:  time.Now(),
	}

	t := newTask(types.FileTransfer{
		ID:         desc.ID,
		SessionID:  sessionID,
		Descriptor: desc,
		Direction:  types.DirectionSend,
		Status:     types.TransferPending,
		Progress:   types.TransferProgress{Total: desc.Size},
		StartedAt:  time.Now(),
	})

	m.mu.Lock()
	m.transfers[desc.ID] = t
	m.mu.Unlock()

	m.logger.Info("开始发送文件",
		"transfer_id", desc.ID,
		"session_id", sessionID.ShortString(),
		"name", desc.Name,
		"size", desc.Size)

	loopCtx, cancel := m.loopContext(ctx)
	m.wg.Add(1)
	go func() {
		defer cancel()
		m.runSend(loopCtx, t, f, sink)
	}()

	return desc.ID, nil
}

// Receive 启动接收
func (m *Manager) Receive(ctx context.Context, sessionID types.SessionID, desc types.FileDescriptor, source transferif.ChunkSource) (types.TransferID, error) {
	if atomic.LoadInt32(&m.closed) == 1 {
		return "", ErrPipelineClosed
	}

	name := filepath.Base(desc.Name)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", ErrInvalidFileName
	}
	if desc.Size > uint64(m.cfg.MaxFileSize) {
		return "", ErrFileTooLarge
	}

	if err := os.MkdirAll(m.cfg.DownloadDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(filepath.Join(m.cfg.DownloadDir, name))
	if err != nil {
		return "", err
	}

	t := newTask(types.FileTransfer{
		ID:         desc.ID,
		SessionID:  sessionID,
		Descriptor: desc,
		Direction:  types.DirectionReceive,
		Status:     types.TransferPending,
		Progress:   types.TransferProgress{Total: desc.Size},
		StartedAt:  time.Now(),
	})

	m.mu.Lock()
	m.transfers[desc.ID] = t
	m.mu.Unlock()

	m.logger.Info("开始接收文件",
		"transfer_id", desc.ID,
		"session_id", sessionID.ShortString(),
		"name", name,
		"size", desc.Size)

	loopCtx, cancel := m.loopContext(ctx)
	m.wg.Add(1)
	go func() {
		defer cancel()
		m.runReceive(loopCtx, t, f, source)
	}()

	return desc.ID, nil
}

// ============================================================================
//                              生命周期控制
// ============================================================================

// Pause 暂停传输
func (m *Manager) Pause(id types.TransferID) error {
	t, ok := m.task(id)
	if !ok {
		return ErrTransferMissing
	}
	return t.transition(types.TransferPaused)
}

// Resume 恢复传输
func (m *Manager) Resume(id types.TransferID) error {
	t, ok := m.task(id)
	if !ok {
		return ErrTransferMissing
	}
	return t.transition(types.TransferInProgress)
}

// Cancel 取消传输
func (m *Manager) Cancel(id types.TransferID) error {
	t, ok := m.task(id)
	if !ok {
		return ErrTransferMissing
	}
	return t.transition(types.TransferCancelled)
}

// Transfer 返回传输状态快照
func (m *Manager) Transfer(id types.TransferID) (*types.FileTransfer, bool) {
	t, ok := m.task(id)
	if !ok {
		return nil, false
	}
	return t.snapshot(), true
}

// Transfers 返回所有传输的快照
func (m *Manager) Transfers() []*types.FileTransfer {
	m.mu.RLock()
	tasks := make([]*task, 0, len(m.transfers))
	for _, t := range m.transfers {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	out := make([]*types.FileTransfer, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Descriptor 返回带最终校验和的描述符（仅完成后）
func (m *Manager) Descriptor(id types.TransferID) (*types.FileDescriptor, bool) {
	t, ok := m.task(id)
	if !ok {
		return nil, false
	}
	snap := t.snapshot()
	if snap.Status != types.TransferCompleted {
		return nil, false
	}
	desc := snap.Descriptor
	return &desc, true
}

// SetRateLimit 设置会话的传输速率上限（字节/秒，0 解除）
func (m *Manager) SetRateLimit(sessionID types.SessionID, bytesPerSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bytesPerSec <= 0 {
		delete(m.limiters, sessionID)
		return
	}
	if b, ok := m.limiters[sessionID]; ok {
		b.setRate(bytesPerSec)
		return
	}
	m.limiters[sessionID] = newTokenBucket(bytesPerSec)
}

// Close 取消全部存活传输并等待运行循环退出
func (m *Manager) Close() error {
	if !atomic.CompareAndSwapInt32(&m.closed, 0, 1) {
		return nil
	}

	m.mu.RLock()
	for _, t := range m.transfers {
		_ = t.transition(types.TransferCancelled)
	}
	m.mu.RUnlock()

	m.lifeStop()
	m.wg.Wait()
	return nil
}

// ============================================================================
//                              内部辅助
// ============================================================================

// task 按 ID 查找任务
func (m *Manager) task(id types.TransferID) (*task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	return t, ok
}

// limiterFor 返回会话当前的限速器，无则为 nil
func (m *Manager) limiterFor(sessionID types.SessionID) *tokenBucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiters[sessionID]
}

// guessMIME 按扩展名猜测 MIME 类型
func guessMIME(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return defaultMIME
}
