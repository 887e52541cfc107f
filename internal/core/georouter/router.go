package georouter

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/util/logger"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// NodeSource 节点快照来源
//
// 由负载均衡器满足；路由器只读节点的健康、负载与延迟。
type NodeSource interface {
	Node(id types.NodeID) (*types.RelayNode, bool)
}

// Router 地理路由器实现
type Router struct {
	cfg    config.GeoRouterConfig
	svc    georouterif.LocationService
	nodes  NodeSource
	logger *slog.Logger

	cache *expirable.LRU[string, *types.ClientLocation]

	mu      sync.RWMutex
	regions map[string]*types.GeographicRegion
	rules   map[string]*types.RoutingRule

	// 指标
	metricsMu    sync.Mutex
	regionCounts map[string]int64
	ruleHits     map[string]int64
	latencySum   float64
	latencyCount int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
}

var _ georouterif.Router = (*Router)(nil)

// New 创建地理路由器
func New(cfg config.GeoRouterConfig, svc georouterif.LocationService, nodes NodeSource) *Router {
	return &Router{
		cfg:    cfg,
		svc:    svc,
		nodes:  nodes,
		logger: logger.Logger("georouter"),
		cache: expirable.NewLRU[string, *types.ClientLocation](
			cfg.LocationCacheSize, nil, time.Duration(cfg.LocationCacheTTL)),
		regions:      make(map[string]*types.GeographicRegion),
		rules:        make(map[string]*types.RoutingRule),
		regionCounts: make(map[string]int64),
		ruleHits:     make(map[string]int64),
	}
}

// ============================================================================
//                              定位
// ============================================================================

// ClientLocation 解析客户端位置（带 TTL 缓存）
//
// 结果不论置信度高低都会缓存。
func (r *Router) ClientLocation(ctx context.Context, ip string) (*types.ClientLocation, error) {
	if loc, ok := r.cache.Get(ip); ok {
		r.cacheHits.Add(1)
		out := *loc
		return &out, nil
	}
	r.cacheMisses.Add(1)

	loc, err := r.svc.Locate(ctx, ip)
	if err != nil {
		return nil, err
	}
	r.cache.Add(ip, loc)

	out := *loc
	return &out, nil
}

// ============================================================================
//                              区域与规则管理
// ============================================================================

// AddRegion 注册区域
func (r *Router) AddRegion(region *types.GeographicRegion) error {
	if region == nil || region.ID == "" {
		return ErrInvalidRegion
	}

	r.mu.Lock()
	clone := *region
	r.regions[region.ID] = &clone
	r.mu.Unlock()

	r.logger.Info("区域已注册", "region_id", region.ID, "name", region.Name)
	return nil
}

// RemoveRegion 移除区域
func (r *Router) RemoveRegion(id string) {
	r.mu.Lock()
	delete(r.regions, id)
	r.mu.Unlock()
}

// AddRule 注册路由规则
func (r *Router) AddRule(rule *types.RoutingRule) error {
	if rule == nil || rule.ID == "" {
		return ErrInvalidRule
	}
	if w := rule.Conditions.TimeWindow; w != nil {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 24 {
			return ErrInvalidRule
		}
	}

	r.mu.Lock()
	clone := *rule
	r.rules[rule.ID] = &clone
	r.mu.Unlock()

	r.logger.Info("路由规则已注册", "rule_id", rule.ID, "priority", rule.Priority)
	return nil
}

// RemoveRule 移除路由规则
func (r *Router) RemoveRule(id string) {
	r.mu.Lock()
	delete(r.rules, id)
	r.mu.Unlock()
}

// RecordUsage 记录区域带宽使用
func (r *Router) RecordUsage(regionID string, deltaMbps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	region, ok := r.regions[regionID]
	if !ok {
		return
	}
	region.CurrentUsageMbps += deltaMbps
	if region.CurrentUsageMbps < 0 {
		region.CurrentUsageMbps = 0
	}
}

// ============================================================================
//                              区域判定与路由
// ============================================================================

// DetermineRegion 为位置确定归属区域
func (r *Router) DetermineRegion(loc *types.ClientLocation) (*types.GeographicRegion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	region := r.determineRegionLocked(loc)
	if region == nil {
		return nil, false
	}
	clone := *region
	return &clone, true
}

// determineRegionLocked 边界框优先，否则中心最近（须持锁）
func (r *Router) determineRegionLocked(loc *types.ClientLocation) *types.GeographicRegion {
	var boxed *types.GeographicRegion
	boxedDist := 0.0
	var nearest *types.GeographicRegion
	nearestDist := 0.0

	for _, region := range r.regions {
		dist := loc.Coords.DistanceKm(region.Center)
		if region.Bounds.Contains(loc.Coords) {
			if boxed == nil || dist < boxedDist {
				boxed, boxedDist = region, dist
			}
		}
		if nearest == nil || dist < nearestDist {
			nearest, nearestDist = region, dist
		}
	}

	if boxed != nil {
		return boxed
	}
	return nearest
}

// Route 产出完整的路由决策
func (r *Router) Route(ctx context.Context, loc *types.ClientLocation) (*types.RoutingDecision, error) {
	if loc == nil {
		return nil, ErrLocationRequired
	}
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	home := r.determineRegionLocked(loc)
	if home == nil {
		return nil, ErrNoRegion
	}

	applied, preferredRegions := r.matchRulesLocked(loc, home.ID)

	// 候选区域：规则给出的首选区域按序，否则全部区域按距离升序
	var candidates []*types.GeographicRegion
	if len(preferredRegions) > 0 {
		for _, id := range preferredRegions {
			if region, ok := r.regions[id]; ok {
				candidates = append(candidates, region)
			}
		}
	} else {
		for _, region := range r.regions {
			candidates = append(candidates, region)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return loc.Coords.DistanceKm(candidates[i].Center) <
				loc.Coords.DistanceKm(candidates[j].Center)
		})
	}

	for _, region := range candidates {
		if !region.HasQuotaFor(loc.EstimatedMbps) {
			continue
		}
		node := r.selectNode(region.PreferredNodes)
		if node == nil {
			continue
		}

		decision := &types.RoutingDecision{
			RegionID:     region.ID,
			NodeID:       node.ID,
			BackupNodes:  r.backupNodes(region.BackupNodes, node.ID),
			AppliedRules: applied,
		}
		dist := loc.Coords.DistanceKm(node.Location.Coords)
		decision.EstimatedLatencyMs = r.cfg.BaseLatencyMs + dist/100
		decision.Confidence = r.confidence(loc, dist, len(applied))

		r.recordDecision(decision)

		r.logger.Debug("路由决策",
			"region_id", decision.RegionID,
			"node_id", decision.NodeID,
			"latency_ms", decision.EstimatedLatencyMs,
			"rules", len(applied))
		return decision, nil
	}

	return nil, ErrNoRouteAvailable
}

// matchRulesLocked 按优先级匹配规则（须持锁）
//
// 返回命中的规则 ID 与合并后的首选区域序列。
func (r *Router) matchRulesLocked(loc *types.ClientLocation, regionID string) (applied []string, preferredRegions []string) {
	matched := make([]*types.RoutingRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if r.ruleApplies(rule, loc, regionID) {
			matched = append(matched, rule)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})

	seen := make(map[string]bool)
	for _, rule := range matched {
		applied = append(applied, rule.ID)
		for _, id := range rule.Actions.PreferredRegions {
			if !seen[id] {
				seen[id] = true
				preferredRegions = append(preferredRegions, id)
			}
		}
	}
	return applied, preferredRegions
}

// ruleApplies 检查规则是否适用
func (r *Router) ruleApplies(rule *types.RoutingRule, loc *types.ClientLocation, regionID string) bool {
	if !rule.Enabled {
		return false
	}

	if len(rule.SourceRegions) > 0 {
		found := false
		for _, id := range rule.SourceRegions {
			if id == regionID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	cond := rule.Conditions
	if cond.MinBandwidthMbps > 0 && loc.EstimatedMbps < cond.MinBandwidthMbps {
		return false
	}
	for _, country := range cond.ExcludedCountries {
		if country == loc.Country {
			return false
		}
	}
	if cond.TimeWindow != nil && !cond.TimeWindow.Contains(time.Now()) {
		return false
	}
	return true
}

// selectNode 在首选节点中按性能评分选择
//
// 评分与负载均衡器的性能算法一致：延迟 + 负载比 × 100。
func (r *Router) selectNode(ids []types.NodeID) *types.RelayNode {
	var best *types.RelayNode
	bestScore := 0.0

	for _, id := range ids {
		node, ok := r.nodes.Node(id)
		if !ok || node.Health != types.HealthHealthy || !node.HasCapacity() {
			continue
		}
		score := node.LatencyMs + node.LoadRatio()*100
		if best == nil || score < bestScore {
			best, bestScore = node, score
		}
	}
	return best
}

// backupNodes 过滤备份节点：Healthy、排除选中节点、数量受限
func (r *Router) backupNodes(ids []types.NodeID, selected types.NodeID) []types.NodeID {
	var out []types.NodeID
	for _, id := range ids {
		if id == selected {
			continue
		}
		node, ok := r.nodes.Node(id)
		if !ok || node.Health != types.HealthHealthy {
			continue
		}
		out = append(out, id)
		if len(out) >= r.cfg.MaxBackupNodes {
			break
		}
	}
	return out
}

// confidence 推导决策置信度
//
// 以定位置信度为基底，规则命中小幅加成，距离越远越打折。
func (r *Router) confidence(loc *types.ClientLocation, distKm float64, ruleCount int) float64 {
	c := loc.Confidence
	if ruleCount > 0 {
		c += 0.1
	}
	c -= distKm / 20000

	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ============================================================================
//                              指标
// ============================================================================

// recordDecision 记录决策指标
func (r *Router) recordDecision(d *types.RoutingDecision) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	r.regionCounts[d.RegionID]++
	for _, id := range d.AppliedRules {
		r.ruleHits[id]++
	}
	r.latencySum += d.EstimatedLatencyMs
	r.latencyCount++
}

// Metrics 返回运行指标快照
func (r *Router) Metrics() georouterif.Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	m := georouterif.Metrics{
		RegionCounts: make(map[string]int64, len(r.regionCounts)),
		RuleHits:     make(map[string]int64, len(r.ruleHits)),
		CacheHits:    r.cacheHits.Load(),
		CacheMisses:  r.cacheMisses.Load(),
	}
	for k, v := range r.regionCounts {
		m.RegionCounts[k] = v
	}
	for k, v := range r.ruleHits {
		m.RuleHits[k] = v
	}
	if r.latencyCount > 0 {
		m.AvgLatencyMs = r.latencySum / float64(r.latencyCount)
	}
	return m
}
