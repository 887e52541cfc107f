package types

import (
	"math"
	"time"
)

// ============================================================================
//                              Coordinates - 坐标
// ============================================================================

// Coordinates 经纬度坐标
type Coordinates struct {
	// Lat 纬度（-90 .. 90）
	Lat float64 `json:"lat" yaml:"lat"`

	// Lon 经度（-180 .. 180）
	Lon float64 `json:"lon" yaml:"lon"`
}

// earthRadiusKm 地球半径（公里）
const earthRadiusKm = 6371.0

// DistanceKm 计算到另一坐标的 Haversine 距离（公里）
func (c Coordinates) DistanceKm(other Coordinates) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - c.Lat) * math.Pi / 180
	dLon := (other.Lon - c.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// IsZero 检查坐标是否未设置
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// ============================================================================
//                              BoundingBox - 边界框
// ============================================================================

// BoundingBox 区域边界框
type BoundingBox struct {
	// MinLat 纬度下界
	MinLat float64 `json:"min_lat" yaml:"min_lat"`

	// MaxLat 纬度上界
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`

	// MinLon 经度下界
	MinLon float64 `json:"min_lon" yaml:"min_lon"`

	// MaxLon 经度上界
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// Contains 检查坐标是否落在边界框内（边界为闭区间）
func (b BoundingBox) Contains(c Coordinates) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// ============================================================================
//                              GeographicRegion - 地理区域
// ============================================================================

// GeographicRegion 地理区域定义
type GeographicRegion struct {
	// ID 区域标识（如 "na-east"）
	ID string `json:"id" yaml:"id"`

	// Name 人类可读名称
	Name string `json:"name" yaml:"name"`

	// Country 国家代码
	Country string `json:"country" yaml:"country"`

	// Continent 大洲代码
	Continent string `json:"continent" yaml:"continent"`

	// Center 区域中心坐标
	Center Coordinates `json:"center" yaml:"center"`

	// Bounds 边界框
	Bounds BoundingBox `json:"bounds" yaml:"bounds"`

	// PreferredNodes 首选节点列表
	PreferredNodes []NodeID `json:"preferred_nodes" yaml:"preferred_nodes"`

	// BackupNodes 备份节点列表
	BackupNodes []NodeID `json:"backup_nodes" yaml:"backup_nodes"`

	// QuotaMbps 区域带宽配额（Mbps，0 表示不限制）
	QuotaMbps float64 `json:"quota_mbps" yaml:"quota_mbps"`

	// CurrentUsageMbps 当前区域带宽使用量
	CurrentUsageMbps float64 `json:"-" yaml:"-"`

	// LatencyTargets 到目标区域的延迟目标（区域 ID → 毫秒）
	LatencyTargets map[string]float64 `json:"latency_targets,omitempty" yaml:"latency_targets,omitempty"`
}

// HasQuotaFor 检查区域配额能否容纳给定带宽
func (r *GeographicRegion) HasQuotaFor(mbps float64) bool {
	if r.QuotaMbps <= 0 {
		return true
	}
	return r.CurrentUsageMbps+mbps <= r.QuotaMbps
}

// ============================================================================
//                              ClientLocation - 客户端位置
// ============================================================================

// ClientLocation IP 定位结果
type ClientLocation struct {
	// IP 客户端 IP
	IP string

	// Country 国家代码
	Country string

	// Region 区域/省份
	Region string

	// City 城市
	City string

	// Coords 坐标
	Coords Coordinates

	// ISP 运营商提示
	ISP string

	// EstimatedMbps 估计带宽（Mbps）
	EstimatedMbps float64

	// Confidence 定位置信度（0.0 - 1.0）
	Confidence float64
}

// ============================================================================
//                              RoutingRule - 路由规则
// ============================================================================

// TimeWindow 规则生效时间窗口
type TimeWindow struct {
	// StartHour 起始小时（含，0-23）
	StartHour int `json:"start_hour" yaml:"start_hour"`

	// EndHour 结束小时（不含，0-24）
	EndHour int `json:"end_hour" yaml:"end_hour"`

	// Days 生效的星期（为空表示每天）
	Days []time.Weekday `json:"days,omitempty" yaml:"days,omitempty"`

	// Timezone 时区名称（IANA，如 "America/New_York"；空表示 UTC）
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Contains 检查时刻是否落在时间窗口内
//
// 时区加载失败时按 UTC 处理。支持跨午夜窗口（StartHour > EndHour）。
func (w *TimeWindow) Contains(t time.Time) bool {
	loc := time.UTC
	if w.Timezone != "" {
		if l, err := time.LoadLocation(w.Timezone); err == nil {
			loc = l
		}
	}
	local := t.In(loc)

	if len(w.Days) > 0 {
		found := false
		for _, d := range w.Days {
			if local.Weekday() == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	h := local.Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	// 跨午夜
	return h >= w.StartHour || h < w.EndHour
}

// RuleConditions 规则匹配条件
type RuleConditions struct {
	// MaxLatencyMs 延迟上限（0 表示不限制）
	MaxLatencyMs float64 `json:"max_latency_ms,omitempty" yaml:"max_latency_ms,omitempty"`

	// MinBandwidthMbps 客户端最小估计带宽
	MinBandwidthMbps float64 `json:"min_bandwidth_mbps,omitempty" yaml:"min_bandwidth_mbps,omitempty"`

	// MaxLoadRatio 节点负载上限（0 表示不限制）
	MaxLoadRatio float64 `json:"max_load_ratio,omitempty" yaml:"max_load_ratio,omitempty"`

	// ExcludedCountries 排除的国家代码
	ExcludedCountries []string `json:"excluded_countries,omitempty" yaml:"excluded_countries,omitempty"`

	// TimeWindow 生效时间窗口（nil 表示全天）
	TimeWindow *TimeWindow `json:"time_window,omitempty" yaml:"time_window,omitempty"`
}

// RuleActions 规则动作
type RuleActions struct {
	// PreferredRegions 首选区域列表（按顺序尝试）
	PreferredRegions []string `json:"preferred_regions,omitempty" yaml:"preferred_regions,omitempty"`

	// PreferredNodes 首选节点列表
	PreferredNodes []NodeID `json:"preferred_nodes,omitempty" yaml:"preferred_nodes,omitempty"`

	// BackupNodes 备份节点列表
	BackupNodes []NodeID `json:"backup_nodes,omitempty" yaml:"backup_nodes,omitempty"`

	// BandwidthCapMbps 带宽上限（0 表示不设置）
	BandwidthCapMbps float64 `json:"bandwidth_cap_mbps,omitempty" yaml:"bandwidth_cap_mbps,omitempty"`

	// QoSProfile 强制 QoS 等级（nil 表示不强制）
	QoSProfile *QoSClass `json:"qos_profile,omitempty" yaml:"qos_profile,omitempty"`
}

// RoutingRule 运维路由规则
type RoutingRule struct {
	// ID 规则标识
	ID string `json:"id" yaml:"id"`

	// Priority 规则优先级（越大越先匹配）
	Priority int `json:"priority" yaml:"priority"`

	// SourceRegions 来源区域（为空表示匹配所有区域）
	SourceRegions []string `json:"source_regions,omitempty" yaml:"source_regions,omitempty"`

	// Conditions 匹配条件
	Conditions RuleConditions `json:"conditions" yaml:"conditions"`

	// Actions 规则动作
	Actions RuleActions `json:"actions" yaml:"actions"`

	// Enabled 是否启用
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ============================================================================
//                              RoutingDecision - 路由决策
// ============================================================================

// RoutingDecision 地理路由决策结果
type RoutingDecision struct {
	// RegionID 选中的区域
	RegionID string

	// NodeID 选中的节点
	NodeID NodeID

	// BackupNodes 备份节点（最多 2 个，均为 Healthy）
	BackupNodes []NodeID

	// EstimatedLatencyMs 估计延迟（毫秒）
	EstimatedLatencyMs float64

	// Confidence 决策置信度（0.0 - 1.0）
	Confidence float64

	// AppliedRules 命中的规则 ID
	AppliedRules []string
}
