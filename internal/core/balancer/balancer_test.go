package balancer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// testNode 构造默认健康的测试节点
func testNode(id string, maxSessions int) *types.RelayNode {
	return &types.RelayNode{
		ID:               types.NodeID(id),
		Endpoint:         id + ".relay.example:7480",
		MaxSessions:      maxSessions,
		BandwidthCapMbps: 1000,
		Health:           types.HealthHealthy,
		LatencyMs:        50,
		Priority:         5,
	}
}

func newTestBalancer(t *testing.T, algo types.Algorithm) *Balancer {
	t.Helper()
	cfg := config.DefaultBalancerConfig()
	b := New(cfg)
	b.SetAlgorithm(algo)
	return b
}

func TestAddRemoveNode(t *testing.T) {
	b := newTestBalancer(t, types.AlgoRoundRobin)

	require.NoError(t, b.AddNode(testNode("node-a", 10)))
	assert.ErrorIs(t, b.AddNode(testNode("node-a", 10)), ErrNodeExists)
	assert.ErrorIs(t, b.AddNode(nil), ErrInvalidNode)
	assert.ErrorIs(t, b.AddNode(&types.RelayNode{ID: "x"}), ErrInvalidNode)

	n, ok := b.Node("node-a")
	require.True(t, ok)
	assert.Equal(t, types.NodeID("node-a"), n.ID)

	// 快照不暴露内部指针
	n.CurrentSessions = 99
	again, _ := b.Node("node-a")
	assert.Equal(t, 0, again.CurrentSessions)

	_, err := b.RemoveNode("node-b")
	assert.ErrorIs(t, err, ErrNodeMissing)

	result, err := b.RemoveNode("node-a")
	require.NoError(t, err)
	assert.Empty(t, result.Reassigned)
	assert.Empty(t, result.Dropped)
	assert.Empty(t, b.Nodes())
}

func TestCandidateFilter(t *testing.T) {
	b := newTestBalancer(t, types.AlgoLeastConnections)

	healthy := testNode("healthy", 10)
	degraded := testNode("degraded", 10)
	degraded.Health = types.HealthDegraded
	full := testNode("full", 1)
	full.CurrentSessions = 1
	saturated := testNode("saturated", 10)
	saturated.CurrentBandwidthMbps = 950 // 超过 1000 × 0.9
	laggy := testNode("laggy", 10)
	laggy.LatencyMs = 600

	for _, n := range []*types.RelayNode{healthy, degraded, full, saturated, laggy} {
		require.NoError(t, b.AddNode(n))
	}

	for i := 0; i < 3; i++ {
		nodeID, err := b.AssignSession(types.NewSessionID(), nil, 10)
		require.NoError(t, err)
		assert.Equal(t, types.NodeID("healthy"), nodeID)
	}
}

func TestAssignReleaseAccounting(t *testing.T) {
	b := newTestBalancer(t, types.AlgoLeastConnections)
	require.NoError(t, b.AddNode(testNode("node-a", 2)))

	s1 := types.NewSessionID()
	s2 := types.NewSessionID()

	_, err := b.AssignSession(s1, nil, 10)
	require.NoError(t, err)
	_, err = b.AssignSession(s1, nil, 10)
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	_, err = b.AssignSession(s2, nil, 10)
	require.NoError(t, err)

	// 容量耗尽
	_, err = b.AssignSession(types.NewSessionID(), nil, 10)
	assert.ErrorIs(t, err, ErrNoAvailableNode)

	a, ok := b.Assignment(s1)
	require.True(t, ok)
	assert.Equal(t, types.NodeID("node-a"), a.NodeID)
	assert.Equal(t, types.AlgoLeastConnections, a.Algorithm)

	require.NoError(t, b.ReleaseSession(s1))
	assert.ErrorIs(t, b.ReleaseSession(s1), ErrAssignmentMissing)

	n, _ := b.Node("node-a")
	assert.Equal(t, 1, n.CurrentSessions)

	// 释放后容量恢复
	_, err = b.AssignSession(types.NewSessionID(), nil, 10)
	require.NoError(t, err)
}

func TestRoundRobinCycles(t *testing.T) {
	b := newTestBalancer(t, types.AlgoRoundRobin)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.AddNode(testNode(id, 100)))
	}

	var picked []types.NodeID
	for i := 0; i < 6; i++ {
		nodeID, err := b.AssignSession(types.SessionID(fmt.Sprintf("s-%d", i)), nil, 1)
		require.NoError(t, err)
		picked = append(picked, nodeID)
	}
	want := []types.NodeID{"a", "b", "c", "a", "b", "c"}
	assert.Equal(t, want, picked)
}

func TestWeightedRoundRobinPrefersCapacityAndPriority(t *testing.T) {
	b := newTestBalancer(t, types.AlgoWeightedRoundRobin)

	small := testNode("small", 10)
	small.Priority = 10
	big := testNode("big", 100)
	big.Priority = 2

	require.NoError(t, b.AddNode(small))
	require.NoError(t, b.AddNode(big))

	// big: 100×2=200 > small: 10×10=100
	nodeID, err := b.AssignSession(types.NewSessionID(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("big"), nodeID)
}

func TestLeastConnectionsPicksIdleNode(t *testing.T) {
	b := newTestBalancer(t, types.AlgoLeastConnections)

	idle := testNode("idle", 10)
	busy := testNode("busy", 10)
	busy.CurrentSessions = 7

	require.NoError(t, b.AddNode(busy))
	require.NoError(t, b.AddNode(idle))

	nodeID, err := b.AssignSession(types.NewSessionID(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("idle"), nodeID)
}

func TestWeightedLeastConnectionsBalancesLatencyAndLoad(t *testing.T) {
	b := newTestBalancer(t, types.AlgoWeightedLeastConnections)

	fastButLoaded := testNode("fast", 10)
	fastButLoaded.LatencyMs = 10
	fastButLoaded.CurrentSessions = 9 // 10 + 90 = 100

	slowButIdle := testNode("slow", 10)
	slowButIdle.LatencyMs = 80 // 80 + 0 = 80

	require.NoError(t, b.AddNode(fastButLoaded))
	require.NoError(t, b.AddNode(slowButIdle))

	nodeID, err := b.AssignSession(types.NewSessionID(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("slow"), nodeID)
}

func TestGeographicRequiresLocation(t *testing.T) {
	b := newTestBalancer(t, types.AlgoGeographic)
	require.NoError(t, b.AddNode(testNode("a", 10)))

	_, err := b.AssignSession(types.NewSessionID(), nil, 1)
	assert.ErrorIs(t, err, ErrLocationRequired)
}

func TestGeographicPicksNearestNode(t *testing.T) {
	b := newTestBalancer(t, types.AlgoGeographic)

	tokyo := testNode("tokyo", 10)
	tokyo.Location.Coords = types.Coordinates{Lat: 35.68, Lon: 139.69}
	frankfurt := testNode("frankfurt", 10)
	frankfurt.Location.Coords = types.Coordinates{Lat: 50.11, Lon: 8.68}

	require.NoError(t, b.AddNode(tokyo))
	require.NoError(t, b.AddNode(frankfurt))

	osaka := &types.ClientLocation{Coords: types.Coordinates{Lat: 34.69, Lon: 135.50}}
	nodeID, err := b.AssignSession(types.NewSessionID(), osaka, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("tokyo"), nodeID)
}

func TestPerformancePicksLowScore(t *testing.T) {
	b := newTestBalancer(t, types.AlgoPerformance)

	good := testNode("good", 10)
	good.LatencyMs = 20
	bad := testNode("bad", 10)
	bad.LatencyMs = 20
	bad.CurrentSessions = 5 // +50

	require.NoError(t, b.AddNode(bad))
	require.NoError(t, b.AddNode(good))

	nodeID, err := b.AssignSession(types.NewSessionID(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("good"), nodeID)
}

func TestAdaptivePenalizesInsufficientBandwidth(t *testing.T) {
	b := newTestBalancer(t, types.AlgoAdaptive)

	starved := testNode("starved", 10)
	starved.BandwidthCapMbps = 100
	starved.CurrentBandwidthMbps = 80 // 剩余 20 < 50，罚 1000
	roomy := testNode("roomy", 10)
	roomy.LatencyMs = 200 // 即使延迟更差也应胜出

	require.NoError(t, b.AddNode(starved))
	require.NoError(t, b.AddNode(roomy))

	nodeID, err := b.AssignSession(types.NewSessionID(), nil, 50)
	require.NoError(t, err)
	assert.Equal(t, types.NodeID("roomy"), nodeID)
}

func TestRemoveNodeReassignsSessions(t *testing.T) {
	b := newTestBalancer(t, types.AlgoLeastConnections)

	require.NoError(t, b.AddNode(testNode("doomed", 10)))

	s1 := types.NewSessionID()
	s2 := types.NewSessionID()
	_, err := b.AssignSession(s1, nil, 10)
	require.NoError(t, err)
	_, err = b.AssignSession(s2, nil, 10)
	require.NoError(t, err)

	// 只有一个容量为 1 的替补：一个会话改派成功，一个被放弃
	require.NoError(t, b.AddNode(testNode("spare", 1)))

	result, err := b.RemoveNode("doomed")
	require.NoError(t, err)
	assert.Len(t, result.Reassigned, 1)
	assert.Len(t, result.Dropped, 1)

	for sessionID, nodeID := range result.Reassigned {
		assert.Equal(t, types.NodeID("spare"), nodeID)
		a, ok := b.Assignment(sessionID)
		require.True(t, ok)
		assert.Equal(t, types.NodeID("spare"), a.NodeID)
	}
	for _, sessionID := range result.Dropped {
		_, ok := b.Assignment(sessionID)
		assert.False(t, ok)
	}

	spare, _ := b.Node("spare")
	assert.Equal(t, 1, spare.CurrentSessions)
}

func TestSetAlgorithmTakesEffectNextAssign(t *testing.T) {
	b := newTestBalancer(t, types.AlgoRoundRobin)
	require.NoError(t, b.AddNode(testNode("a", 10)))

	assert.Equal(t, types.AlgoRoundRobin, b.Algorithm())

	b.SetAlgorithm(types.AlgoLeastConnections)
	assert.Equal(t, types.AlgoLeastConnections, b.Algorithm())

	s := types.NewSessionID()
	_, err := b.AssignSession(s, nil, 1)
	require.NoError(t, err)
	a, _ := b.Assignment(s)
	assert.Equal(t, types.AlgoLeastConnections, a.Algorithm)
}

func TestUpdateNodeHealthAndBandwidth(t *testing.T) {
	b := newTestBalancer(t, types.AlgoRoundRobin)
	require.NoError(t, b.AddNode(testNode("a", 10)))

	now := time.Now()
	require.NoError(t, b.UpdateNodeHealth("a", types.HealthDegraded, 123, now))
	assert.ErrorIs(t, b.UpdateNodeHealth("gone", types.HealthHealthy, 1, now), ErrNodeMissing)

	n, _ := b.Node("a")
	assert.Equal(t, types.HealthDegraded, n.Health)
	assert.Equal(t, 123.0, n.LatencyMs)
	assert.Equal(t, now, n.LastHealthCheck)

	// 降级节点不再是候选
	_, err := b.AssignSession(types.NewSessionID(), nil, 1)
	assert.ErrorIs(t, err, ErrNoAvailableNode)

	require.NoError(t, b.UpdateNodeBandwidth("a", 42))
	n, _ = b.Node("a")
	assert.Equal(t, 42.0, n.CurrentBandwidthMbps)
}
