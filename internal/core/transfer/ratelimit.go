package transfer

import (
	"context"
	"sync"
	"time"
)

// tokenBucket 字节级令牌桶
//
// 速率为字节/秒，桶容量为一秒的配额；发送循环在块之间
// 等待令牌，形成带宽背压。
type tokenBucket struct {
	mu     sync.Mutex
	rate   float64
	tokens float64
	last   time.Time
}

// newTokenBucket 创建令牌桶
func newTokenBucket(bytesPerSec float64) *tokenBucket {
	return &tokenBucket{
		rate:   bytesPerSec,
		tokens: bytesPerSec,
		last:   time.Now(),
	}
}

// setRate 更新速率，桶容量同步调整
func (b *tokenBucket) setRate(bytesPerSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	b.rate = bytesPerSec
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
}

// wait 阻塞直到取得 n 字节的令牌或上下文取消
func (b *tokenBucket) wait(ctx context.Context, n int) error {
	b.mu.Lock()
	b.refillLocked()

	need := float64(n) - b.tokens
	if need <= 0 {
		b.tokens -= float64(n)
		b.mu.Unlock()
		return nil
	}

	b.tokens -= float64(n)
	delay := time.Duration(need / b.rate * float64(time.Second))
	b.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refillLocked 按流逝时间补充令牌（须持锁）
func (b *tokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now

	b.tokens += elapsed * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
}
