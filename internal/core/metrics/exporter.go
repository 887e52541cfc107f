package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
	relayif "github.com/dep2p/go-deskrelay/pkg/interfaces/relay"
)

// namespace 指标前缀
const namespace = "deskrelay"

// Exporter 抓取式指标导出器
//
// 不维护自己的计数：每次抓取从各组件取快照生成 const 指标，
// 避免指标与真实状态漂移。
type Exporter struct {
	server    relayif.Server
	balancer  balancerif.LoadBalancer
	bandwidth bandwidthif.Manager
	router    georouterif.Router

	sessionsActive    *prometheus.Desc
	sessionsByQoS     *prometheus.Desc
	sessionsByRegion  *prometheus.Desc
	sessionsCreated   *prometheus.Desc
	sessionErrors     *prometheus.Desc
	avgSessionSeconds *prometheus.Desc
	nodeUtilization   *prometheus.Desc
	nodeLatencyMs     *prometheus.Desc
	nodeHealth        *prometheus.Desc
	nodeSessions      *prometheus.Desc
	poolTotalMbps     *prometheus.Desc
	poolAllocatedMbps *prometheus.Desc
	poolAvailableMbps *prometheus.Desc
	poolReservedMbps  *prometheus.Desc
	routeDecisions    *prometheus.Desc
	routeRuleHits     *prometheus.Desc
	locationCacheHits *prometheus.Desc
	locationCacheMiss *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter 创建指标导出器
//
// router 可为 nil（地理路由禁用时）。
func NewExporter(server relayif.Server, lb balancerif.LoadBalancer,
	bw bandwidthif.Manager, router georouterif.Router) *Exporter {
	return &Exporter{
		server:    server,
		balancer:  lb,
		bandwidth: bw,
		router:    router,

		sessionsActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_active"),
			"当前各状态的会话数", []string{"state"}, nil),
		sessionsByQoS: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_by_qos"),
			"当前各 QoS 等级的会话数", []string{"qos"}, nil),
		sessionsByRegion: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_by_region"),
			"当前各区域的会话数", []string{"region"}, nil),
		sessionsCreated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_created_total"),
			"会话创建总数", nil, nil),
		sessionErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_errors_total"),
			"会话创建/运行错误总数", nil, nil),
		avgSessionSeconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "session_duration_avg_seconds"),
			"已终止会话的平均时长", nil, nil),
		nodeUtilization: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "node_utilization"),
			"节点会话负载比（0-1）", []string{"node"}, nil),
		nodeLatencyMs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "node_latency_ms"),
			"节点平滑往返延迟（毫秒）", []string{"node"}, nil),
		nodeHealth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "node_health"),
			"节点健康状态（0=unknown 1=healthy 2=degraded 3=unhealthy 4=maintenance）",
			[]string{"node"}, nil),
		nodeSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "node_sessions"),
			"节点当前会话数", []string{"node"}, nil),
		poolTotalMbps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_total_mbps"),
			"带宽池总容量", []string{"node"}, nil),
		poolAllocatedMbps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_allocated_mbps"),
			"带宽池已分配容量", []string{"node"}, nil),
		poolAvailableMbps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_available_mbps"),
			"带宽池可用容量", []string{"node"}, nil),
		poolReservedMbps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_reserved_mbps"),
			"带宽池为 Critical 预留的容量", []string{"node"}, nil),
		routeDecisions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "route_decisions_total"),
			"各区域的路由决策总数", []string{"region"}, nil),
		routeRuleHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "route_rule_hits_total"),
			"各路由规则的命中总数", []string{"rule"}, nil),
		locationCacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "location_cache_hits_total"),
			"定位缓存命中总数", nil, nil),
		locationCacheMiss: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "location_cache_misses_total"),
			"定位缓存未命中总数", nil, nil),
	}
}

// Describe 实现 prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.sessionsActive
	ch <- e.sessionsByQoS
	ch <- e.sessionsByRegion
	ch <- e.sessionsCreated
	ch <- e.sessionErrors
	ch <- e.avgSessionSeconds
	ch <- e.nodeUtilization
	ch <- e.nodeLatencyMs
	ch <- e.nodeHealth
	ch <- e.nodeSessions
	ch <- e.poolTotalMbps
	ch <- e.poolAllocatedMbps
	ch <- e.poolAvailableMbps
	ch <- e.poolReservedMbps
	ch <- e.routeDecisions
	ch <- e.routeRuleHits
	ch <- e.locationCacheHits
	ch <- e.locationCacheMiss
}

// Collect 实现 prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	m := e.server.Metrics()

	for state, n := range m.SessionsByState {
		ch <- prometheus.MustNewConstMetric(e.sessionsActive,
			prometheus.GaugeValue, float64(n), state.String())
	}
	for qos, n := range m.SessionsByQoS {
		ch <- prometheus.MustNewConstMetric(e.sessionsByQoS,
			prometheus.GaugeValue, float64(n), qos.String())
	}
	for region, n := range m.SessionsByRegion {
		ch <- prometheus.MustNewConstMetric(e.sessionsByRegion,
			prometheus.GaugeValue, float64(n), region)
	}
	ch <- prometheus.MustNewConstMetric(e.sessionsCreated,
		prometheus.CounterValue, float64(m.TotalCreated))
	ch <- prometheus.MustNewConstMetric(e.sessionErrors,
		prometheus.CounterValue, float64(m.TotalErrors))
	ch <- prometheus.MustNewConstMetric(e.avgSessionSeconds,
		prometheus.GaugeValue, m.AvgSessionDuration.Seconds())

	for _, node := range e.balancer.Nodes() {
		label := string(node.ID)
		ch <- prometheus.MustNewConstMetric(e.nodeUtilization,
			prometheus.GaugeValue, node.LoadRatio(), label)
		ch <- prometheus.MustNewConstMetric(e.nodeLatencyMs,
			prometheus.GaugeValue, node.LatencyMs, label)
		ch <- prometheus.MustNewConstMetric(e.nodeHealth,
			prometheus.GaugeValue, float64(node.Health), label)
		ch <- prometheus.MustNewConstMetric(e.nodeSessions,
			prometheus.GaugeValue, float64(node.CurrentSessions), label)

		if pool, ok := e.bandwidth.Pool(node.ID); ok {
			ch <- prometheus.MustNewConstMetric(e.poolTotalMbps,
				prometheus.GaugeValue, pool.TotalMbps, label)
			ch <- prometheus.MustNewConstMetric(e.poolAllocatedMbps,
				prometheus.GaugeValue, pool.AllocatedMbps, label)
			ch <- prometheus.MustNewConstMetric(e.poolAvailableMbps,
				prometheus.GaugeValue, pool.AvailableMbps, label)
			ch <- prometheus.MustNewConstMetric(e.poolReservedMbps,
				prometheus.GaugeValue, pool.ReservedMbps, label)
		}
	}

	if e.router != nil {
		rm := e.router.Metrics()
		for region, n := range rm.RegionCounts {
			ch <- prometheus.MustNewConstMetric(e.routeDecisions,
				prometheus.CounterValue, float64(n), region)
		}
		for rule, n := range rm.RuleHits {
			ch <- prometheus.MustNewConstMetric(e.routeRuleHits,
				prometheus.CounterValue, float64(n), rule)
		}
		ch <- prometheus.MustNewConstMetric(e.locationCacheHits,
			prometheus.CounterValue, float64(rm.CacheHits))
		ch <- prometheus.MustNewConstMetric(e.locationCacheMiss,
			prometheus.CounterValue, float64(rm.CacheMisses))
	}
}
