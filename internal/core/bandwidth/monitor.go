package bandwidth

import (
	"context"
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// monitorLoop 监控循环：按周期采样并执行自适应调整
func (m *Pools) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.Ticker(time.Duration(m.cfg.MonitoringInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-ctx.Done():
			return
		}
	}
}

// tick 执行一个监控周期
//
// 同一周期内的全部变更在一次持锁区间内完成，
// 对外部读者保持原子；事件在解锁后按序发出。
func (m *Pools) tick() {
	now := time.Now()

	m.mu.Lock()
	var batch []types.Adjustment
	for _, p := range m.pools {
		m.expireLocked(p, now)
		s := p.snapshot(now, m.cfg.HistoryRetention)

		if !m.cfg.Adaptive {
			continue
		}
		switch {
		case s.Utilization > m.cfg.CongestionThreshold:
			batch = append(batch, m.relieveCongestionLocked(p, now)...)
		case s.Utilization < m.cfg.UnderutilizationThreshold:
			batch = append(batch, m.scaleUpLocked(p, now)...)
		}
	}
	m.mu.Unlock()

	for _, adj := range batch {
		m.emit(adj)
	}
}

// expireLocked 释放池中过期的分配（须持锁）
func (m *Pools) expireLocked(p *pool, now time.Time) {
	for sessionID, a := range p.allocations {
		if a.IsExpired(now) {
			p.evict(sessionID)
			delete(m.sessions, sessionID)
			m.logger.Info("过期分配已释放",
				"session_id", sessionID.ShortString(),
				"node_id", p.node)
		}
	}
}

// relieveCongestionLocked 拥塞控制（须持锁）
//
// 沿 Low → Normal → High 收缩每个分配 backoff_factor，
// 不低于其保证带宽；Critical 不参与收缩。
func (m *Pools) relieveCongestionLocked(p *pool, now time.Time) []types.Adjustment {
	var out []types.Adjustment

	for _, class := range types.CongestionOrder {
		for _, sessionID := range p.queues[class] {
			a, ok := p.allocations[sessionID]
			if !ok {
				continue
			}
			target := a.AllocatedMbps * (1 - m.cfg.BackoffFactor)
			if target < a.GuaranteedMbps {
				target = a.GuaranteedMbps
			}
			if target >= a.AllocatedMbps {
				continue
			}
			out = append(out, types.Adjustment{
				SessionID: sessionID,
				NodeID:    p.node,
				OldMbps:   a.AllocatedMbps,
				NewMbps:   target,
				Reason:    types.ReasonCongestion,
				At:        now,
			})
			p.resize(a, target)
		}
	}

	if len(out) > 0 {
		m.logger.Info("拥塞控制已执行",
			"node_id", p.node,
			"adjusted", len(out),
			"utilization", p.utilization())
	}
	return out
}

// scaleUpLocked 低利用率扩容（须持锁）
//
// 按优先级从高到低向各分配的峰值扩容，
// 单步总增量不超过池剩余容量的 scale_up_free_cap_fraction。
func (m *Pools) scaleUpLocked(p *pool, now time.Time) []types.Adjustment {
	budget := p.available() * m.cfg.ScaleUpFreeCapFraction
	if budget <= 0 {
		return nil
	}

	var out []types.Adjustment
	for _, class := range types.QoSClasses {
		for _, sessionID := range p.queues[class] {
			if budget <= 0 {
				break
			}
			a, ok := p.allocations[sessionID]
			if !ok || a.AllocatedMbps >= a.PeakMbps {
				continue
			}

			delta := a.PeakMbps - a.AllocatedMbps
			if delta > budget {
				delta = budget
			}
			target := a.AllocatedMbps + delta
			out = append(out, types.Adjustment{
				SessionID: sessionID,
				NodeID:    p.node,
				OldMbps:   a.AllocatedMbps,
				NewMbps:   target,
				Reason:    types.ReasonUnderutilization,
				At:        now,
			})
			p.resize(a, target)
			budget -= delta
		}
	}

	if len(out) > 0 {
		m.logger.Info("扩容已执行",
			"node_id", p.node,
			"adjusted", len(out),
			"utilization", p.utilization())
	}
	return out
}
