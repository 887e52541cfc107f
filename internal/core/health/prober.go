package health

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// TCPProber 以 TCP 拨号作为轻量探测
//
// 拨通即算成功，往返延迟取拨号耗时。
type TCPProber struct {
	// Timeout 单次拨号超时
	Timeout time.Duration
}

// Probe 对节点端点执行一次 TCP 拨号
func (p *TCPProber) Probe(ctx context.Context, node *types.RelayNode) (time.Duration, error) {
	d := net.Dialer{Timeout: p.Timeout}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", node.Endpoint)
	if err != nil {
		return 0, err
	}
	conn.Close()
	return time.Since(start), nil
}

// StubProber 可编程探测桩
//
// 用于测试与本地演示：按设定返回固定延迟或错误。
type StubProber struct {
	mu      sync.Mutex
	latency time.Duration
	err     error
	probes  int
}

// NewStubProber 创建探测桩
func NewStubProber(latency time.Duration) *StubProber {
	return &StubProber{latency: latency}
}

// Probe 返回预设结果
func (p *StubProber) Probe(_ context.Context, _ *types.RelayNode) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if p.err != nil {
		return 0, p.err
	}
	return p.latency, nil
}

// SetLatency 设置探测延迟
func (p *StubProber) SetLatency(latency time.Duration) {
	p.mu.Lock()
	p.latency = latency
	p.mu.Unlock()
}

// SetError 设置探测错误（nil 恢复成功）
func (p *StubProber) SetError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Probes 返回累计探测次数
func (p *StubProber) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}
