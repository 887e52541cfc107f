package georouter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// mockNodes 测试用节点快照来源
type mockNodes struct {
	mu    sync.Mutex
	nodes map[types.NodeID]*types.RelayNode
}

var _ NodeSource = (*mockNodes)(nil)

func newMockNodes() *mockNodes {
	return &mockNodes{nodes: make(map[types.NodeID]*types.RelayNode)}
}

func (m *mockNodes) add(n *types.RelayNode) {
	m.mu.Lock()
	m.nodes[n.ID] = n
	m.mu.Unlock()
}

func (m *mockNodes) Node(id types.NodeID) (*types.RelayNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// countingLocator 统计调用次数的定位服务
type countingLocator struct {
	mu    sync.Mutex
	calls int
	loc   *types.ClientLocation
}

func (l *countingLocator) Locate(_ context.Context, ip string) (*types.ClientLocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.loc == nil {
		return nil, ErrLocationUnknown
	}
	out := *l.loc
	out.IP = ip
	return &out, nil
}

func healthyNode(id string, latency float64) *types.RelayNode {
	return &types.RelayNode{
		ID:          types.NodeID(id),
		Endpoint:    id + ".relay.example:7480",
		MaxSessions: 10,
		Health:      types.HealthHealthy,
		LatencyMs:   latency,
	}
}

// naRegion 北美区域：边界框覆盖 lat 25-50, lon -125..-70
func naRegion() *types.GeographicRegion {
	return &types.GeographicRegion{
		ID:     "na",
		Name:   "North America",
		Center: types.Coordinates{Lat: 39.8, Lon: -98.6},
		Bounds: types.BoundingBox{MinLat: 25, MaxLat: 50, MinLon: -125, MaxLon: -70},
		PreferredNodes: []types.NodeID{"na-1", "na-2"},
		BackupNodes:    []types.NodeID{"na-3", "na-4", "na-5"},
	}
}

func euRegion() *types.GeographicRegion {
	return &types.GeographicRegion{
		ID:     "eu",
		Name:   "Europe",
		Center: types.Coordinates{Lat: 50.1, Lon: 8.7},
		Bounds: types.BoundingBox{MinLat: 35, MaxLat: 70, MinLon: -10, MaxLon: 40},
		PreferredNodes: []types.NodeID{"eu-1"},
	}
}

func nycLocation() *types.ClientLocation {
	return &types.ClientLocation{
		IP:            "1.2.3.4",
		Country:       "US",
		Coords:        types.Coordinates{Lat: 40, Lon: -74},
		EstimatedMbps: 100,
		Confidence:    0.8,
	}
}

func newTestRouter(t *testing.T, nodes *mockNodes) *Router {
	t.Helper()
	svc := &countingLocator{loc: nycLocation()}
	return New(config.DefaultGeoRouterConfig(), svc, nodes)
}

func TestClientLocationCaching(t *testing.T) {
	svc := &countingLocator{loc: nycLocation()}
	r := New(config.DefaultGeoRouterConfig(), svc, newMockNodes())

	loc1, err := r.ClientLocation(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	loc2, err := r.ClientLocation(context.Background(), "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, loc1.Coords, loc2.Coords)
	assert.Equal(t, 1, svc.calls, "第二次解析应命中缓存")

	m := r.Metrics()
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(1), m.CacheMisses)
}

func TestClientLocationUnknown(t *testing.T) {
	svc := &countingLocator{}
	r := New(config.DefaultGeoRouterConfig(), svc, newMockNodes())

	_, err := r.ClientLocation(context.Background(), "203.0.113.9")
	assert.ErrorIs(t, err, ErrLocationUnknown)
}

func TestDetermineRegionBoundingBoxFirst(t *testing.T) {
	r := newTestRouter(t, newMockNodes())
	require.NoError(t, r.AddRegion(naRegion()))
	require.NoError(t, r.AddRegion(euRegion()))

	region, ok := r.DetermineRegion(nycLocation())
	require.True(t, ok)
	assert.Equal(t, "na", region.ID)
}

func TestDetermineRegionInclusiveEdges(t *testing.T) {
	r := newTestRouter(t, newMockNodes())
	require.NoError(t, r.AddRegion(naRegion()))
	require.NoError(t, r.AddRegion(euRegion()))

	// 边界框的四条边都算在内
	corners := []types.Coordinates{
		{Lat: 25, Lon: -125},
		{Lat: 50, Lon: -70},
		{Lat: 25, Lon: -70},
		{Lat: 50, Lon: -125},
	}
	for _, c := range corners {
		region, ok := r.DetermineRegion(&types.ClientLocation{Coords: c})
		require.True(t, ok)
		assert.Equal(t, "na", region.ID, "角点 %+v 应落入北美边界框", c)
	}
}

func TestDetermineRegionNearestFallback(t *testing.T) {
	r := newTestRouter(t, newMockNodes())
	require.NoError(t, r.AddRegion(naRegion()))
	require.NoError(t, r.AddRegion(euRegion()))

	// 亚速尔群岛在两个边界框之外，离欧洲中心更近
	azores := &types.ClientLocation{Coords: types.Coordinates{Lat: 37.7, Lon: -25.7}}
	region, ok := r.DetermineRegion(azores)
	require.True(t, ok)
	assert.Equal(t, "eu", region.ID)
}

func TestDetermineRegionEmpty(t *testing.T) {
	r := newTestRouter(t, newMockNodes())
	_, ok := r.DetermineRegion(nycLocation())
	assert.False(t, ok)
}

func TestRouteGeographicScenario(t *testing.T) {
	nodes := newMockNodes()
	nodes.add(healthyNode("na-1", 30))
	nodes.add(healthyNode("na-2", 10))
	nodes.add(healthyNode("na-3", 40))
	nodes.add(healthyNode("eu-1", 20))

	r := newTestRouter(t, nodes)
	require.NoError(t, r.AddRegion(naRegion()))
	require.NoError(t, r.AddRegion(euRegion()))
	require.NoError(t, r.AddRule(&types.RoutingRule{
		ID:            "prefer-na",
		Priority:      10,
		SourceRegions: []string{"na"},
		Actions:       types.RuleActions{PreferredRegions: []string{"na"}},
		Enabled:       true,
	}))

	decision, err := r.Route(context.Background(), nycLocation())
	require.NoError(t, err)

	assert.Equal(t, "na", decision.RegionID)
	assert.Equal(t, types.NodeID("na-2"), decision.NodeID, "性能评分最低的首选节点胜出")
	assert.Contains(t, decision.AppliedRules, "prefer-na")
	assert.Greater(t, decision.EstimatedLatencyMs, 50.0)
	assert.Greater(t, decision.Confidence, 0.0)
}

func TestRouteBackupNodes(t *testing.T) {
	nodes := newMockNodes()
	nodes.add(healthyNode("na-1", 10))
	nodes.add(healthyNode("na-3", 10))
	unhealthy := healthyNode("na-4", 10)
	unhealthy.Health = types.HealthUnhealthy
	nodes.add(unhealthy)
	nodes.add(healthyNode("na-5", 10))

	r := newTestRouter(t, nodes)
	require.NoError(t, r.AddRegion(naRegion()))

	decision, err := r.Route(context.Background(), nycLocation())
	require.NoError(t, err)

	// na-4 不健康被剔除；数量上限 2
	assert.Equal(t, []types.NodeID{"na-3", "na-5"}, decision.BackupNodes)
}

func TestRouteQuotaSkipsRegion(t *testing.T) {
	nodes := newMockNodes()
	nodes.add(healthyNode("na-1", 10))
	nodes.add(healthyNode("eu-1", 10))

	na := naRegion()
	na.QuotaMbps = 150
	na.CurrentUsageMbps = 100 // 100 + 100 > 150

	r := newTestRouter(t, nodes)
	require.NoError(t, r.AddRegion(na))
	require.NoError(t, r.AddRegion(euRegion()))

	decision, err := r.Route(context.Background(), nycLocation())
	require.NoError(t, err)
	assert.Equal(t, "eu", decision.RegionID)
}

func TestRouteNoRouteAvailable(t *testing.T) {
	// 区域存在但没有可用节点
	r := newTestRouter(t, newMockNodes())
	require.NoError(t, r.AddRegion(naRegion()))

	_, err := r.Route(context.Background(), nycLocation())
	assert.ErrorIs(t, err, ErrNoRouteAvailable)

	_, err = r.Route(context.Background(), nil)
	assert.ErrorIs(t, err, ErrLocationRequired)
}

func TestRuleMatching(t *testing.T) {
	nodes := newMockNodes()
	nodes.add(healthyNode("na-1", 10))

	r := newTestRouter(t, nodes)
	require.NoError(t, r.AddRegion(naRegion()))

	disabled := &types.RoutingRule{ID: "disabled", Priority: 100, Enabled: false}
	otherRegion := &types.RoutingRule{ID: "eu-only", Priority: 90, SourceRegions: []string{"eu"}, Enabled: true}
	tooDemanding := &types.RoutingRule{
		ID: "fat-pipe", Priority: 80, Enabled: true,
		Conditions: types.RuleConditions{MinBandwidthMbps: 500},
	}
	excluded := &types.RoutingRule{
		ID: "no-us", Priority: 70, Enabled: true,
		Conditions: types.RuleConditions{ExcludedCountries: []string{"US"}},
	}
	low := &types.RoutingRule{ID: "low", Priority: 1, Enabled: true}
	high := &types.RoutingRule{ID: "high", Priority: 50, Enabled: true}

	for _, rule := range []*types.RoutingRule{disabled, otherRegion, tooDemanding, excluded, low, high} {
		require.NoError(t, r.AddRule(rule))
	}

	decision, err := r.Route(context.Background(), nycLocation())
	require.NoError(t, err)

	// 只有 high 和 low 命中，按优先级降序记录
	assert.Equal(t, []string{"high", "low"}, decision.AppliedRules)

	m := r.Metrics()
	assert.Equal(t, int64(1), m.RuleHits["high"])
	assert.Zero(t, m.RuleHits["no-us"])
}

func TestAddRuleValidation(t *testing.T) {
	r := newTestRouter(t, newMockNodes())

	assert.ErrorIs(t, r.AddRule(nil), ErrInvalidRule)
	assert.ErrorIs(t, r.AddRule(&types.RoutingRule{}), ErrInvalidRule)
	assert.ErrorIs(t, r.AddRule(&types.RoutingRule{
		ID: "bad-window",
		Conditions: types.RuleConditions{
			TimeWindow: &types.TimeWindow{StartHour: 25},
		},
	}), ErrInvalidRule)

	assert.ErrorIs(t, r.AddRegion(nil), ErrInvalidRegion)
	assert.ErrorIs(t, r.AddRegion(&types.GeographicRegion{}), ErrInvalidRegion)
}

func TestRecordUsage(t *testing.T) {
	r := newTestRouter(t, newMockNodes())
	na := naRegion()
	na.QuotaMbps = 200
	require.NoError(t, r.AddRegion(na))

	r.RecordUsage("na", 150)
	region, _ := r.DetermineRegion(nycLocation())
	assert.Equal(t, 150.0, region.CurrentUsageMbps)

	// 释放超过当前用量时收敛到 0
	r.RecordUsage("na", -300)
	region, _ = r.DetermineRegion(nycLocation())
	assert.Equal(t, 0.0, region.CurrentUsageMbps)

	// 未知区域静默忽略
	r.RecordUsage("nowhere", 10)
}

func TestRegionMetrics(t *testing.T) {
	nodes := newMockNodes()
	nodes.add(healthyNode("na-1", 10))

	r := newTestRouter(t, nodes)
	require.NoError(t, r.AddRegion(naRegion()))

	for i := 0; i < 3; i++ {
		_, err := r.Route(context.Background(), nycLocation())
		require.NoError(t, err)
	}

	m := r.Metrics()
	assert.Equal(t, int64(3), m.RegionCounts["na"])
	assert.Greater(t, m.AvgLatencyMs, 0.0)
}
