package bandwidth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

func newTestManager() *Pools {
	return New(config.DefaultBandwidthConfig())
}

func request(sessionID string, mbps, guaranteed float64, priority types.QoSClass) bandwidthif.Request {
	return bandwidthif.Request{
		SessionID:      types.SessionID(sessionID),
		RequestedMbps:  mbps,
		GuaranteedMbps: guaranteed,
		Priority:       priority,
		Profile:        types.ProfileForQoS(priority),
	}
}

func TestAddRemovePool(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.AddPool("node-a", 1000))
	assert.ErrorIs(t, m.AddPool("node-a", 1000), ErrPoolExists)
	assert.ErrorIs(t, m.AddPool("", 1000), ErrInvalidPool)
	assert.ErrorIs(t, m.AddPool("node-b", 0), ErrInvalidPool)

	stats, ok := m.Pool("node-a")
	require.True(t, ok)
	assert.Equal(t, 1000.0, stats.TotalMbps)
	assert.Equal(t, 100.0, stats.ReservedMbps)
	assert.Equal(t, 900.0, stats.AvailableMbps)

	m.RemovePool("node-a")
	_, ok = m.Pool("node-a")
	assert.False(t, ok)
}

func TestPoolInvariant(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))

	_, err := m.RequestBandwidth(context.Background(), request("s1", 300, 100, types.QoSNormal))
	require.NoError(t, err)

	stats, _ := m.Pool("node-a")
	assert.Equal(t, stats.TotalMbps, stats.AllocatedMbps+stats.AvailableMbps+stats.ReservedMbps)
	assert.Equal(t, 300.0, stats.AllocatedMbps)
	assert.Equal(t, 0.3, stats.Utilization())
	assert.Equal(t, 1, stats.QueueDepths[types.QoSNormal])
}

func TestRequestValidation(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))
	ctx := context.Background()

	_, err := m.RequestBandwidth(ctx, request("", 100, 50, types.QoSNormal))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = m.RequestBandwidth(ctx, request("s1", 0, 0, types.QoSNormal))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	// guaranteed 不得超过 requested
	_, err = m.RequestBandwidth(ctx, request("s1", 100, 200, types.QoSNormal))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.RequestBandwidth(ctx, request("s1", 100, 50, types.QoSNormal))
	require.NoError(t, err)
	_, err = m.RequestBandwidth(ctx, request("s1", 100, 50, types.QoSNormal))
	assert.ErrorIs(t, err, ErrAlreadyAllocated)
}

func TestExactFitAdmission(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))
	ctx := context.Background()

	// 非 Critical 可用容量 = 1000 − 100 预留 = 900，恰好用满
	a, err := m.RequestBandwidth(ctx, request("s1", 900, 100, types.QoSNormal))
	require.NoError(t, err)
	assert.Equal(t, 900.0, a.AllocatedMbps)

	// 再多 1 Mbps 就没有合适的池
	_, err = m.RequestBandwidth(ctx, request("s2", 1, 0, types.QoSNormal))
	assert.ErrorIs(t, err, ErrNoSuitablePool)
}

func TestCriticalMayConsumeReserve(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 100))
	ctx := context.Background()

	// 非 Critical 被预留挡住
	_, err := m.RequestBandwidth(ctx, request("s1", 95, 50, types.QoSNormal))
	assert.ErrorIs(t, err, ErrNoSuitablePool)

	// Critical 可以吃进预留
	_, err = m.RequestBandwidth(ctx, request("s1", 95, 95, types.QoSCritical))
	require.NoError(t, err)

	stats, _ := m.Pool("node-a")
	assert.Equal(t, 95.0, stats.AllocatedMbps)
	assert.Equal(t, 5.0, stats.ReservedMbps, "有效预留随剩余容量收缩")
	assert.Equal(t, 0.0, stats.AvailableMbps)
	assert.Equal(t, stats.TotalMbps, stats.AllocatedMbps+stats.AvailableMbps+stats.ReservedMbps)
}

func TestPeakFromBurstTolerance(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))

	req := request("s1", 100, 50, types.QoSNormal)
	req.Profile.BurstPercent = 20

	a, err := m.RequestBandwidth(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 120.0, a.PeakMbps)
	assert.Equal(t, 100.0, a.AllocatedMbps)
	assert.Equal(t, 50.0, a.GuaranteedMbps)
}

func TestChoosesLowestUtilizationPool(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("busy", 1000))
	require.NoError(t, m.AddPool("idle", 1000))
	ctx := context.Background()

	req := request("warm", 500, 100, types.QoSNormal)
	req.NodeHint = "busy"
	_, err := m.RequestBandwidth(ctx, req)
	require.NoError(t, err)

	a, err := m.RequestBandwidth(ctx, request("s2", 100, 50, types.QoSNormal))
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("idle"), a.NodeID)
}

func TestNodeHintPinsPool(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("a", 1000))
	require.NoError(t, m.AddPool("b", 100))
	ctx := context.Background()

	req := request("s1", 500, 100, types.QoSNormal)
	req.NodeHint = "b"
	_, err := m.RequestBandwidth(ctx, req)
	assert.ErrorIs(t, err, ErrNoSuitablePool, "提示的池容量不足时不退回其他池")

	req.NodeHint = "a"
	a, err := m.RequestBandwidth(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("a"), a.NodeID)
}

func TestReleaseBandwidth(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))
	ctx := context.Background()

	_, err := m.RequestBandwidth(ctx, request("s1", 300, 100, types.QoSNormal))
	require.NoError(t, err)

	require.NoError(t, m.ReleaseBandwidth("s1"))
	assert.ErrorIs(t, m.ReleaseBandwidth("s1"), ErrAllocationMissing)

	stats, _ := m.Pool("node-a")
	assert.Equal(t, 0.0, stats.AllocatedMbps)
	assert.Equal(t, 0, stats.QueueDepths[types.QoSNormal])

	_, ok := m.Allocation("s1")
	assert.False(t, ok)
}

func TestAdjustAllocationBounds(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))

	req := request("s1", 100, 50, types.QoSNormal)
	req.Profile.BurstPercent = 50 // peak = 150
	_, err := m.RequestBandwidth(context.Background(), req)
	require.NoError(t, err)

	assert.ErrorIs(t, m.AdjustAllocation("s1", 40, types.ReasonQoS), ErrAdjustOutOfRange)
	assert.ErrorIs(t, m.AdjustAllocation("s1", 151, types.ReasonQoS), ErrAdjustOutOfRange)
	assert.ErrorIs(t, m.AdjustAllocation("missing", 100, types.ReasonQoS), ErrAllocationMissing)

	require.NoError(t, m.AdjustAllocation("s1", 120, types.ReasonPolicyEnforcement))

	a, ok := m.Allocation("s1")
	require.True(t, ok)
	assert.Equal(t, 120.0, a.AllocatedMbps)

	stats, _ := m.Pool("node-a")
	assert.Equal(t, 120.0, stats.AllocatedMbps)

	select {
	case adj := <-m.Adjustments():
		assert.Equal(t, types.SessionID("s1"), adj.SessionID)
		assert.Equal(t, 100.0, adj.OldMbps)
		assert.Equal(t, 120.0, adj.NewMbps)
		assert.Equal(t, types.ReasonPolicyEnforcement, adj.Reason)
	default:
		t.Fatal("应发出调整事件")
	}
}

func TestCongestionControl(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))
	ctx := context.Background()

	// L=400/Low(保证 200)，N=300/Normal(保证 150)，C=200/Critical(保证 200)
	lReq := request("L", 400, 200, types.QoSLow)
	lReq.Profile.BurstPercent = 0
	nReq := request("N", 300, 150, types.QoSNormal)
	nReq.Profile.BurstPercent = 0
	cReq := request("C", 200, 200, types.QoSCritical)
	cReq.Profile.BurstPercent = 0

	for _, req := range []bandwidthif.Request{lReq, nReq, cReq} {
		_, err := m.RequestBandwidth(ctx, req)
		require.NoError(t, err)
	}

	stats, _ := m.Pool("node-a")
	require.Equal(t, 0.90, stats.Utilization())

	m.tick()

	// Low 400→300，Normal 300→225，Critical 不动；释放 175
	l, _ := m.Allocation("L")
	assert.Equal(t, 300.0, l.AllocatedMbps)
	n, _ := m.Allocation("N")
	assert.Equal(t, 225.0, n.AllocatedMbps)
	c, _ := m.Allocation("C")
	assert.Equal(t, 200.0, c.AllocatedMbps)

	stats, _ = m.Pool("node-a")
	assert.Equal(t, 725.0, stats.AllocatedMbps)
	assert.Equal(t, 175.0, stats.AvailableMbps)

	// 同一周期的调整按 Low → Normal 顺序成批可见
	adj1 := <-m.Adjustments()
	assert.Equal(t, types.SessionID("L"), adj1.SessionID)
	assert.Equal(t, types.ReasonCongestion, adj1.Reason)
	adj2 := <-m.Adjustments()
	assert.Equal(t, types.SessionID("N"), adj2.SessionID)
	assert.Equal(t, 300.0, adj2.OldMbps)
	assert.Equal(t, 225.0, adj2.NewMbps)
}

func TestCongestionNeverBelowGuaranteed(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 100))
	ctx := context.Background()

	// 90/Low 全部为保证带宽，收缩无从下手
	req := request("s1", 90, 90, types.QoSLow)
	req.Profile.BurstPercent = 0
	_, err := m.RequestBandwidth(ctx, req)
	require.NoError(t, err)

	m.tick()

	a, _ := m.Allocation("s1")
	assert.Equal(t, 90.0, a.AllocatedMbps)

	select {
	case adj := <-m.Adjustments():
		t.Fatalf("不应有调整事件: %+v", adj)
	default:
	}
}

func TestScaleUpTowardPeak(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))

	req := request("s1", 100, 50, types.QoSNormal)
	req.Profile.BurstPercent = 50 // peak = 150
	_, err := m.RequestBandwidth(context.Background(), req)
	require.NoError(t, err)

	m.tick()

	// 利用率 0.10 < 0.30：向峰值扩容，预算充足时直达 peak
	a, _ := m.Allocation("s1")
	assert.Equal(t, 150.0, a.AllocatedMbps)

	adj := <-m.Adjustments()
	assert.Equal(t, types.ReasonUnderutilization, adj.Reason)
	assert.Equal(t, 100.0, adj.OldMbps)
	assert.Equal(t, 150.0, adj.NewMbps)
}

func TestScaleUpBudgetCap(t *testing.T) {
	cfg := config.DefaultBandwidthConfig()
	cfg.ScaleUpFreeCapFraction = 0.05
	m := New(cfg)
	require.NoError(t, m.AddPool("node-a", 1000))

	req := request("s1", 100, 50, types.QoSNormal)
	req.Profile.BurstPercent = 100 // peak = 200
	_, err := m.RequestBandwidth(context.Background(), req)
	require.NoError(t, err)

	m.tick()

	// 预算 = available(800) × 0.05 = 40：只能涨到 140
	a, _ := m.Allocation("s1")
	assert.Equal(t, 140.0, a.AllocatedMbps)
}

func TestExpiredAllocationReleased(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.AddPool("node-a", 1000))

	_, err := m.RequestBandwidth(context.Background(), request("s1", 100, 50, types.QoSNormal))
	require.NoError(t, err)

	m.mu.Lock()
	m.pools["node-a"].allocations["s1"].ExpiresAt = time.Now().Add(-time.Second)
	m.mu.Unlock()

	m.tick()

	_, ok := m.Allocation("s1")
	assert.False(t, ok)
	stats, _ := m.Pool("node-a")
	assert.Equal(t, 0.0, stats.AllocatedMbps)
}

func TestHistoryRetention(t *testing.T) {
	cfg := config.DefaultBandwidthConfig()
	cfg.HistoryRetention = 3
	cfg.Adaptive = false
	m := New(cfg)
	require.NoError(t, m.AddPool("node-a", 1000))

	for i := 0; i < 5; i++ {
		m.tick()
	}

	history := m.History("node-a")
	assert.Len(t, history, 3)
	assert.Nil(t, m.History("missing"))
}

func TestReportUsageFeedsSnapshot(t *testing.T) {
	cfg := config.DefaultBandwidthConfig()
	cfg.Adaptive = false
	m := New(cfg)
	require.NoError(t, m.AddPool("node-a", 1000))

	_, err := m.RequestBandwidth(context.Background(), request("s1", 200, 100, types.QoSNormal))
	require.NoError(t, err)
	m.ReportUsage("s1", 120)
	m.ReportUsage("ghost", 50) // 未知会话被忽略

	m.tick()

	history := m.History("node-a")
	require.Len(t, history, 1)
	assert.Equal(t, 120.0, history[0].UsedMbps)
	assert.Equal(t, 200.0, history[0].AllocatedMbps)
	assert.Equal(t, 1, history[0].ActiveSessions)
}

func TestStartStop(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}
