package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"

	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// runReceive 接收循环
//
// 逐块读取 → 流式解密 → 解码 → 落盘 → 哈希。解密失败或
// 校验和不一致时传输失败并丢弃目标文件。
func (m *Manager) runReceive(ctx context.Context, t *task, f *os.File, source transferif.ChunkSource) {
	defer m.wg.Done()

	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	if err := t.transition(types.TransferInProgress); err != nil {
		f.Close()
		return
	}

	snap := t.snapshot()
	sessionID := snap.SessionID
	path := f.Name()

	h := sha256.New()
	var received uint64

	for {
		if err := t.awaitRunnable(ctx); err != nil {
			m.discard(t, f, path, err)
			return
		}

		data, err := source.ReadChunk(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			m.discard(t, f, path, err)
			return
		}

		_, encoded, err := m.engine.DecryptStream(sessionID, data)
		if err != nil {
			m.discard(t, f, path, err)
			return
		}
		plain, err := decodeChunk(encoded)
		if err != nil {
			m.discard(t, f, path, err)
			return
		}

		// 对端声明多少就只收多少，超出即失败丢弃
		if received+uint64(len(plain)) > snap.Descriptor.Size {
			m.discard(t, f, path, ErrSizeExceeded)
			return
		}

		if _, err := f.Write(plain); err != nil {
			m.discard(t, f, path, err)
			return
		}
		h.Write(plain)
		received += uint64(len(plain))
		t.addProgress(len(plain))
	}

	if err := f.Close(); err != nil {
		m.failTransfer(t, err)
		return
	}

	var checksum [32]byte
	h.Sum(checksum[:0])
	if !bytes.Equal(checksum[:], snap.Descriptor.Checksum[:]) {
		m.failTransfer(t, ErrChecksumMismatch)
		os.Remove(path)
		m.logger.Warn("校验和不匹配，已丢弃文件",
			"transfer_id", snap.ID,
			"path", path)
		return
	}

	if err := t.complete(checksum); err != nil {
		return
	}

	m.logger.Info("接收完成",
		"transfer_id", snap.ID,
		"session_id", sessionID.ShortString(),
		"path", path)
}

// discard 终止接收并丢弃部分写入的文件
func (m *Manager) discard(t *task, f *os.File, path string, err error) {
	f.Close()
	os.Remove(path)

	if errors.Is(err, errStopped) {
		m.logger.Info("接收已终止，丢弃部分文件",
			"transfer_id", t.snapshot().ID,
			"path", path)
		return
	}
	m.failTransfer(t, err)
}
