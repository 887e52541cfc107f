// Package georouter 定义地理路由器接口
package georouter

import (
	"context"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// LocationService IP 定位能力
//
// 单方法能力类型；生产环境通常由外部 GeoIP 服务实现，
// 测试使用桩实现。
type LocationService interface {
	// Locate 将 IP 映射为客户端位置
	Locate(ctx context.Context, ip string) (*types.ClientLocation, error)
}

// Metrics 路由器运行指标
type Metrics struct {
	// RegionCounts 各区域的决策次数
	RegionCounts map[string]int64

	// RuleHits 各规则的命中次数
	RuleHits map[string]int64

	// AvgLatencyMs 滚动平均估计延迟
	AvgLatencyMs float64

	// CacheHits 定位缓存命中数
	CacheHits int64

	// CacheMisses 定位缓存未命中数
	CacheMisses int64
}

// Router 地理路由器
//
// 输入区域集合、启用的路由规则和定位服务，
// 输出缩小后的候选节点决策。
type Router interface {
	// ClientLocation 解析客户端位置（带 TTL 缓存）
	ClientLocation(ctx context.Context, ip string) (*types.ClientLocation, error)

	// DetermineRegion 为位置确定归属区域
	//
	// 优先选择边界框包含该点的区域，否则选择中心最近的区域。
	DetermineRegion(loc *types.ClientLocation) (*types.GeographicRegion, bool)

	// Route 产出完整的路由决策
	Route(ctx context.Context, loc *types.ClientLocation) (*types.RoutingDecision, error)

	// AddRegion 注册区域
	AddRegion(region *types.GeographicRegion) error

	// RemoveRegion 移除区域
	RemoveRegion(id string)

	// AddRule 注册路由规则（非法规则在此被拒绝）
	AddRule(rule *types.RoutingRule) error

	// RemoveRule 移除路由规则
	RemoveRule(id string)

	// RecordUsage 记录区域带宽使用（会话创建/终止时调用）
	RecordUsage(regionID string, deltaMbps float64)

	// Metrics 返回运行指标快照
	Metrics() Metrics
}
