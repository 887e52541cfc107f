package config

import "time"

// GeoRouterConfig 地理路由配置
type GeoRouterConfig struct {
	// Enabled 是否启用地理路由
	Enabled bool `json:"enabled" yaml:"enabled"`

	// LocationCacheTTL 定位缓存 TTL
	LocationCacheTTL Duration `json:"location_cache_ttl" yaml:"location_cache_ttl"`

	// LocationCacheSize 定位缓存容量（IP 数量）
	LocationCacheSize int `json:"location_cache_size" yaml:"location_cache_size"`

	// BaseLatencyMs 延迟估计的基础值（毫秒）
	BaseLatencyMs float64 `json:"base_latency_ms" yaml:"base_latency_ms"`

	// MaxBackupNodes 备份节点上限
	MaxBackupNodes int `json:"max_backup_nodes" yaml:"max_backup_nodes"`
}

// DefaultGeoRouterConfig 返回默认地理路由配置
func DefaultGeoRouterConfig() GeoRouterConfig {
	return GeoRouterConfig{
		Enabled:           true,
		LocationCacheTTL:  Duration(24 * time.Hour),
		LocationCacheSize: 4096,
		BaseLatencyMs:     50,
		MaxBackupNodes:    2,
	}
}
