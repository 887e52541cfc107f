package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// task 一次传输的运行时状态
//
// 进度与状态在同一把锁下更新，对外部读者保持原子。
type task struct {
	mu   sync.Mutex
	cond *sync.Cond
	ft   types.FileTransfer
}

// newTask 创建传输任务
func newTask(ft types.FileTransfer) *task {
	t := &task{ft: ft}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// snapshot 返回传输状态副本
func (t *task) snapshot() *types.FileTransfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	ft := t.ft
	return &ft
}

// transition 执行状态变迁，非法变迁返回错误
func (t *task) transition(next types.TransferStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ft.Status.CanTransitionTo(next) {
		return ErrInvalidStateChange
	}
	t.ft.Status = next
	if next.IsTerminal() {
		t.ft.CompletedAt = time.Now()
	}
	t.cond.Broadcast()
	return nil
}

// fail 把传输置为失败并记录原因；已终止的传输不动
func (t *task) fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ft.Status.IsTerminal() {
		return
	}
	t.ft.Status = types.TransferFailed
	t.ft.Error = reason
	t.ft.CompletedAt = time.Now()
	t.cond.Broadcast()
}

// complete 把传输置为完成并落定最终描述符校验和
func (t *task) complete(checksum [32]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ft.Status.CanTransitionTo(types.TransferCompleted) {
		return ErrInvalidStateChange
	}
	t.ft.Status = types.TransferCompleted
	t.ft.Descriptor.Checksum = checksum
	t.ft.CompletedAt = time.Now()
	t.cond.Broadcast()
	return nil
}

// addProgress 累加已传输字节数
func (t *task) addProgress(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ft.Progress.BytesTransferred += uint64(n)
}

// awaitRunnable 阻塞直到传输可继续运行
//
// Paused 状态挂起等待；终止状态返回 errStopped；
// 上下文取消通过外部 Broadcast 唤醒。
func (t *task) awaitRunnable(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch t.ft.Status {
		case types.TransferInProgress:
			return nil
		case types.TransferPaused:
			t.cond.Wait()
		default:
			return errStopped
		}
	}
}
