package transfer

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"

	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// runSend 发送循环
//
// 逐块读取 → 哈希 → 编码（可选压缩）→ 流式加密 → 写入出口。
// 校验和对明文计算，最后一块发出后落定进描述符。
func (m *Manager) runSend(ctx context.Context, t *task, f *os.File, sink transferif.ChunkSink) {
	defer m.wg.Done()
	defer f.Close()

	// 上下文取消唤醒挂起的暂停等待
	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	if err := t.transition(types.TransferInProgress); err != nil {
		return
	}

	snap := t.snapshot()
	sessionID := snap.SessionID
	compress := snap.Descriptor.Compressed

	h := sha256.New()
	buf := make([]byte, m.cfg.ChunkSize)

	for {
		if err := t.awaitRunnable(ctx); err != nil {
			m.abortSend(t, err)
			return
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			plain := buf[:n]
			h.Write(plain)

			if lim := m.limiterFor(sessionID); lim != nil {
				if err := lim.wait(ctx, n); err != nil {
					m.abortSend(t, err)
					return
				}
			}

			if err := m.emitChunk(ctx, sessionID, plain, compress, sink); err != nil {
				m.failTransfer(t, err)
				return
			}
			t.addProgress(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			m.failTransfer(t, readErr)
			return
		}
	}

	var checksum [32]byte
	h.Sum(checksum[:0])
	if err := t.complete(checksum); err != nil {
		return
	}

	m.logger.Info("发送完成",
		"transfer_id", t.snapshot().ID,
		"session_id", sessionID.ShortString())
}

// emitChunk 编码、加密并写出一个块
func (m *Manager) emitChunk(ctx context.Context, sessionID types.SessionID, plain []byte, compress bool, sink transferif.ChunkSink) error {
	encoded, err := encodeChunk(plain, compress)
	if err != nil {
		return err
	}

	seq, err := m.engine.NextStreamSeq(sessionID)
	if err != nil {
		return err
	}
	data, err := m.engine.EncryptStream(sessionID, seq, encoded)
	if err != nil {
		return err
	}

	return sink.WriteChunk(ctx, data)
}

// abortSend 处理运行循环的非 I/O 终止
//
// 取消是正常出口，不改写状态；上下文取消按失败记录。
func (m *Manager) abortSend(t *task, err error) {
	if errors.Is(err, errStopped) {
		m.logger.Info("发送已终止", "transfer_id", t.snapshot().ID)
		return
	}
	m.failTransfer(t, err)
}

// failTransfer 标记失败并记录日志
func (m *Manager) failTransfer(t *task, err error) {
	t.fail(err.Error())
	m.logger.Warn("传输失败",
		"transfer_id", t.snapshot().ID,
		"error", err)
}
