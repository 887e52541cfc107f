package relayserver

import (
	"context"
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// cleanupLoop 周期清理扫描
func (s *Server) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(time.Duration(s.cfg.CleanupInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep 执行一次清理
//
// 终止条件：Idle/Disconnected 且空闲超过 idle_timeout；
// 或会话存活超过 max_session_duration（配置为 0 时不限制）。
func (s *Server) sweep() {
	now := s.clock.Now()
	idleTimeout := time.Duration(s.cfg.IdleTimeout)
	maxDuration := time.Duration(s.cfg.MaxSessionDuration)

	s.mu.RLock()
	var victims []types.SessionID
	for id, rec := range s.sessions {
		state := rec.session.State
		idleExpired := (state == types.StateIdle || state == types.StateDisconnected) &&
			rec.session.IdleFor(now) > idleTimeout
		overMax := maxDuration > 0 && now.Sub(rec.session.CreatedAt) > maxDuration
		if idleExpired || overMax {
			victims = append(victims, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range victims {
		if err := s.Terminate(id); err != nil && err != ErrSessionMissing {
			s.logger.Warn("清理会话失败",
				"session_id", id.ShortString(), "error", err)
		}
	}

	if len(victims) > 0 {
		s.logger.Info("清理扫描完成", "terminated", len(victims))
	}
}

// adjustLoop 消费带宽调整事件
//
// 调整即背压：刷新会话的分配记录，向均衡器同步节点
// 带宽占用，并把新速率压到传输管道上。
func (s *Server) adjustLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case adj, ok := <-s.bandwidth.Adjustments():
			if !ok {
				return
			}
			s.applyAdjustment(adj)
		case <-ctx.Done():
			return
		}
	}
}

// applyAdjustment 应用一条带宽调整
func (s *Server) applyAdjustment(adj types.Adjustment) {
	s.mu.Lock()
	if rec, ok := s.sessions[adj.SessionID]; ok {
		rec.session.AllocatedMbps = adj.NewMbps
	}
	s.mu.Unlock()

	// 向均衡器同步节点的当前总分配
	if stats, ok := s.bandwidth.Pool(adj.NodeID); ok {
		if err := s.balancer.UpdateNodeBandwidth(adj.NodeID, stats.AllocatedMbps); err != nil {
			s.logger.Warn("同步节点带宽失败", "node_id", adj.NodeID, "error", err)
		}
	}

	// Mbps → 字节/秒
	s.pipeline.SetRateLimit(adj.SessionID, adj.NewMbps*1e6/8)

	// 推送给已连接的客户端
	s.notifyMu.RLock()
	onAdjust := s.onAdjust
	s.notifyMu.RUnlock()
	if onAdjust != nil {
		onAdjust(adj)
	}

	s.logger.Debug("带宽调整已转发",
		"session_id", adj.SessionID.ShortString(),
		"old_mbps", adj.OldMbps,
		"new_mbps", adj.NewMbps,
		"reason", adj.Reason.String())
}
