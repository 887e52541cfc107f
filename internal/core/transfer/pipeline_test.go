package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/crypto"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// chanPipe 测试用的块管道：Sink 与 Source 共享一条通道
type chanPipe struct {
	ch chan []byte
}

func newChanPipe(capacity int) *chanPipe {
	return &chanPipe{ch: make(chan []byte, capacity)}
}

func (p *chanPipe) WriteChunk(ctx context.Context, chunk []byte) error {
	data := append([]byte(nil), chunk...)
	select {
	case p.ch <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chanPipe) ReadChunk(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-p.ch:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// gateSink 每块等待放行信号的 Sink，用于控制发送节奏
type gateSink struct {
	inner *chanPipe
	gate  chan struct{}
}

func (s *gateSink) WriteChunk(ctx context.Context, chunk []byte) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.inner.WriteChunk(ctx, chunk)
}

// newLoopEngine 创建自环加密引擎：加解密共享同一份会话密钥
func newLoopEngine(t *testing.T, sessionID types.SessionID) cryptocore.Engine {
	t.Helper()

	e := crypto.NewManager(config.DefaultCryptoConfig())
	_, err := e.GenerateIdentity()
	require.NoError(t, err)

	peer := crypto.NewManager(config.DefaultCryptoConfig())
	_, err = peer.GenerateIdentity()
	require.NoError(t, err)
	peerPub, err := peer.CurrentPublicKey()
	require.NoError(t, err)

	_, err = e.EstablishSession(sessionID, peerPub)
	require.NoError(t, err)
	return e
}

// newTestPipeline 创建落盘到临时目录的管道
func newTestPipeline(t *testing.T, engine cryptocore.Engine, compression bool) (*Manager, string) {
	t.Helper()

	cfg := config.DefaultTransferConfig()
	cfg.DownloadDir = t.TempDir()
	cfg.Compression = compression
	m := NewManager(cfg, engine)
	t.Cleanup(func() { _ = m.Close() })
	return m, cfg.DownloadDir
}

// writeTempFile 写入临时源文件
func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// waitStatus 等待传输进入目标状态
func waitStatus(t *testing.T, m *Manager, id types.TransferID, want types.TransferStatus) *types.FileTransfer {
	t.Helper()
	var snap *types.FileTransfer
	require.Eventually(t, func() bool {
		ft, ok := m.Transfer(id)
		if !ok {
			return false
		}
		snap = ft
		return ft.Status == want
	}, 5*time.Second, 5*time.Millisecond, "等待状态 %v 超时", want)
	return snap
}

func TestSendReceiveRoundTrip(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, downloadDir := newTestPipeline(t, engine, true)

	// 1 MiB 随机内容：不可压缩，64 KiB 分块共 16 块
	content := make([]byte, 1<<20)
	_, err := rand.Read(content)
	require.NoError(t, err)
	path := writeTempFile(t, "screen.bin", content)

	pipe := newChanPipe(64)
	ctx := context.Background()

	sendID, err := m.Send(ctx, sessionID, path, pipe)
	require.NoError(t, err)

	sent := waitStatus(t, m, sendID, types.TransferCompleted)
	assert.Equal(t, sent.Progress.Total, sent.Progress.BytesTransferred)
	assert.Equal(t, 1.0, sent.Progress.Fraction())

	desc, ok := m.Descriptor(sendID)
	require.True(t, ok)
	assert.Equal(t, sha256.Sum256(content), desc.Checksum)
	assert.True(t, desc.Encrypted)
	close(pipe.ch)

	recvID, err := m.Receive(ctx, sessionID, *desc, pipe)
	require.NoError(t, err)

	received := waitStatus(t, m, recvID, types.TransferCompleted)
	assert.Equal(t, received.Progress.Total, received.Progress.BytesTransferred)

	got, err := os.ReadFile(filepath.Join(downloadDir, "screen.bin"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got), "接收内容必须与源文件一致")
}

func TestSendReceiveCompressible(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, downloadDir := newTestPipeline(t, engine, true)

	// 高度重复的内容走压缩路径
	content := bytes.Repeat([]byte("remote desktop frame "), 20000)
	path := writeTempFile(t, "frames.log", content)

	pipe := newChanPipe(64)
	ctx := context.Background()

	sendID, err := m.Send(ctx, sessionID, path, pipe)
	require.NoError(t, err)
	waitStatus(t, m, sendID, types.TransferCompleted)

	desc, ok := m.Descriptor(sendID)
	require.True(t, ok)
	close(pipe.ch)

	recvID, err := m.Receive(ctx, sessionID, *desc, pipe)
	require.NoError(t, err)
	waitStatus(t, m, recvID, types.TransferCompleted)

	got, err := os.ReadFile(filepath.Join(downloadDir, "frames.log"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestTamperedChunkDiscardsFile(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, downloadDir := newTestPipeline(t, engine, false)

	content := make([]byte, 200*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	path := writeTempFile(t, "payload.bin", content)

	pipe := newChanPipe(64)
	ctx := context.Background()

	sendID, err := m.Send(ctx, sessionID, path, pipe)
	require.NoError(t, err)
	waitStatus(t, m, sendID, types.TransferCompleted)
	desc, ok := m.Descriptor(sendID)
	require.True(t, ok)
	close(pipe.ch)

	// 篡改第二块的密文
	var chunks [][]byte
	for data := range pipe.ch {
		chunks = append(chunks, data)
	}
	require.GreaterOrEqual(t, len(chunks), 2)
	chunks[1][len(chunks[1])-1] ^= 0x01

	tampered := newChanPipe(len(chunks))
	for _, c := range chunks {
		tampered.ch <- c
	}
	close(tampered.ch)

	recvID, err := m.Receive(ctx, sessionID, *desc, tampered)
	require.NoError(t, err)

	failed := waitStatus(t, m, recvID, types.TransferFailed)
	assert.Contains(t, failed.Error, "integrity")

	_, statErr := os.Stat(filepath.Join(downloadDir, "payload.bin"))
	assert.True(t, os.IsNotExist(statErr), "解密失败必须丢弃目标文件")
}

func TestChecksumMismatchFailsTransfer(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, downloadDir := newTestPipeline(t, engine, false)

	content := []byte("small but important file")
	path := writeTempFile(t, "note.txt", content)

	pipe := newChanPipe(8)
	ctx := context.Background()

	sendID, err := m.Send(ctx, sessionID, path, pipe)
	require.NoError(t, err)
	waitStatus(t, m, sendID, types.TransferCompleted)
	desc, ok := m.Descriptor(sendID)
	require.True(t, ok)
	close(pipe.ch)

	// 伪造描述符校验和
	desc.Checksum[0] ^= 0xFF

	recvID, err := m.Receive(ctx, sessionID, *desc, pipe)
	require.NoError(t, err)

	failed := waitStatus(t, m, recvID, types.TransferFailed)
	assert.Equal(t, ErrChecksumMismatch.Error(), failed.Error)

	_, statErr := os.Stat(filepath.Join(downloadDir, "note.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReceiveRejectsOversizedStream(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, downloadDir := newTestPipeline(t, engine, false)

	content := make([]byte, 200*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	path := writeTempFile(t, "claimed.bin", content)

	pipe := newChanPipe(64)
	ctx := context.Background()

	sendID, err := m.Send(ctx, sessionID, path, pipe)
	require.NoError(t, err)
	waitStatus(t, m, sendID, types.TransferCompleted)
	desc, ok := m.Descriptor(sendID)
	require.True(t, ok)
	close(pipe.ch)

	// 描述符声明的大小远小于实际流量：首块就应失败丢弃
	desc.Size = 10

	recvID, err := m.Receive(ctx, sessionID, *desc, pipe)
	require.NoError(t, err)

	failed := waitStatus(t, m, recvID, types.TransferFailed)
	assert.Equal(t, ErrSizeExceeded.Error(), failed.Error)
	assert.LessOrEqual(t, failed.Progress.BytesTransferred, failed.Progress.Total)

	_, statErr := os.Stat(filepath.Join(downloadDir, "claimed.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCloseUnblocksParkedReceive(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, downloadDir := newTestPipeline(t, engine, false)

	desc := types.FileDescriptor{
		ID:   types.NewTransferID(),
		Name: "stuck.bin",
		Size: 1024,
	}

	// 永不产块的来源：接收循环停在 ReadChunk 上
	recvID, err := m.Receive(context.Background(), sessionID, desc, newChanPipe(1))
	require.NoError(t, err)
	waitStatus(t, m, recvID, types.TransferInProgress)

	closed := make(chan struct{})
	go func() {
		_ = m.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close 未能唤醒阻塞在 ReadChunk 上的接收循环")
	}

	ft, ok := m.Transfer(recvID)
	require.True(t, ok)
	assert.True(t, ft.Status.IsTerminal())
	_, statErr := os.Stat(filepath.Join(downloadDir, "stuck.bin"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSendRejectsOversizeFile(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)

	cfg := config.DefaultTransferConfig()
	cfg.MaxFileSize = 16
	cfg.DownloadDir = t.TempDir()
	m := NewManager(cfg, engine)
	t.Cleanup(func() { _ = m.Close() })

	path := writeTempFile(t, "big.bin", make([]byte, 64))
	_, err := m.Send(context.Background(), sessionID, path, newChanPipe(1))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestReceiveRejectsBadName(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, _ := newTestPipeline(t, engine, false)

	desc := types.FileDescriptor{ID: types.NewTransferID(), Name: ".."}
	_, err := m.Receive(context.Background(), sessionID, desc, newChanPipe(1))
	assert.ErrorIs(t, err, ErrInvalidFileName)
}

func TestPauseResume(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, _ := newTestPipeline(t, engine, false)

	// 4 块文件
	cfgChunks := 4
	content := make([]byte, m.cfg.ChunkSize*cfgChunks)
	_, err := rand.Read(content)
	require.NoError(t, err)
	path := writeTempFile(t, "paced.bin", content)

	inner := newChanPipe(16)
	sink := &gateSink{inner: inner, gate: make(chan struct{}, 16)}
	ctx := context.Background()

	id, err := m.Send(ctx, sessionID, path, sink)
	require.NoError(t, err)

	// 放行第一块，然后暂停
	sink.gate <- struct{}{}
	require.Eventually(t, func() bool {
		ft, _ := m.Transfer(id)
		return ft.Progress.BytesTransferred > 0
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Pause(id))
	snap, _ := m.Transfer(id)
	assert.Equal(t, types.TransferPaused, snap.Status)

	// 暂停中不允许再次暂停
	assert.ErrorIs(t, m.Pause(id), ErrInvalidStateChange)

	require.NoError(t, m.Resume(id))
	for i := 0; i < cfgChunks; i++ {
		sink.gate <- struct{}{}
	}

	waitStatus(t, m, id, types.TransferCompleted)
}

func TestCancelIsTerminal(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, _ := newTestPipeline(t, engine, false)

	content := make([]byte, m.cfg.ChunkSize*4)
	path := writeTempFile(t, "doomed.bin", content)

	sink := &gateSink{inner: newChanPipe(16), gate: make(chan struct{}, 16)}
	id, err := m.Send(context.Background(), sessionID, path, sink)
	require.NoError(t, err)

	require.NoError(t, m.Cancel(id))
	snap := waitStatus(t, m, id, types.TransferCancelled)
	assert.False(t, snap.CompletedAt.IsZero())

	// 终止后不可恢复
	assert.ErrorIs(t, m.Resume(id), ErrInvalidStateChange)
	assert.ErrorIs(t, m.Cancel(id), ErrInvalidStateChange)

	// 放行阻塞中的写出，让运行循环观察到终止并退出
	for i := 0; i < 8; i++ {
		sink.gate <- struct{}{}
	}
}

func TestOperationsOnMissingTransfer(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, _ := newTestPipeline(t, engine, false)

	assert.ErrorIs(t, m.Pause("nope"), ErrTransferMissing)
	assert.ErrorIs(t, m.Resume("nope"), ErrTransferMissing)
	assert.ErrorIs(t, m.Cancel("nope"), ErrTransferMissing)

	_, ok := m.Transfer("nope")
	assert.False(t, ok)
}

func TestChunkEncoding(t *testing.T) {
	t.Run("不可压缩数据退回原样编码", func(t *testing.T) {
		plain := make([]byte, 4096)
		_, err := rand.Read(plain)
		require.NoError(t, err)

		encoded, err := encodeChunk(plain, true)
		require.NoError(t, err)
		assert.Equal(t, chunkRaw, encoded[0])

		got, err := decodeChunk(encoded)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("可压缩数据走 DEFLATE", func(t *testing.T) {
		plain := bytes.Repeat([]byte("abcd"), 4096)

		encoded, err := encodeChunk(plain, true)
		require.NoError(t, err)
		assert.Equal(t, chunkFlate, encoded[0])
		assert.Less(t, len(encoded), len(plain))

		got, err := decodeChunk(encoded)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("损坏的标志字节被拒绝", func(t *testing.T) {
		_, err := decodeChunk([]byte{0x7F, 0x01})
		assert.ErrorIs(t, err, ErrChunkCorrupted)

		_, err = decodeChunk(nil)
		assert.ErrorIs(t, err, ErrChunkCorrupted)
	})
}

func TestTokenBucketPacing(t *testing.T) {
	b := newTokenBucket(1024)

	// 桶满时立即放行
	start := time.Now()
	require.NoError(t, b.wait(context.Background(), 1024))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// 桶空后第二次等待需要补充令牌
	start = time.Now()
	require.NoError(t, b.wait(context.Background(), 256))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestSetRateLimitLifecycle(t *testing.T) {
	sessionID := types.NewSessionID()
	engine := newLoopEngine(t, sessionID)
	m, _ := newTestPipeline(t, engine, false)

	assert.Nil(t, m.limiterFor(sessionID))

	m.SetRateLimit(sessionID, 2048)
	require.NotNil(t, m.limiterFor(sessionID))

	m.SetRateLimit(sessionID, 4096)
	assert.Equal(t, 4096.0, m.limiterFor(sessionID).rate)

	m.SetRateLimit(sessionID, 0)
	assert.Nil(t, m.limiterFor(sessionID))
}
