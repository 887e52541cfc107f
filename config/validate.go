package config

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// 配置校验错误
var (
	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = errors.New("invalid config")
)

// Validate 校验整个配置
//
// 非法配置在摄入时拒绝，而不是运行中发现。
func (c *Config) Validate() error {
	if err := c.Crypto.Validate(); err != nil {
		return fmt.Errorf("crypto: %w", err)
	}
	if err := c.Transfer.Validate(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if err := c.Balancer.Validate(); err != nil {
		return fmt.Errorf("balancer: %w", err)
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := c.GeoRouter.Validate(); err != nil {
		return fmt.Errorf("geo_router: %w", err)
	}
	if err := c.Bandwidth.Validate(); err != nil {
		return fmt.Errorf("bandwidth: %w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// Validate 校验加密配置
func (c *CryptoConfig) Validate() error {
	if c.IdentityKeyLifetime <= 0 {
		return fmt.Errorf("%w: identity_key_lifetime must be positive", ErrInvalidConfig)
	}
	if c.KeyRotationInterval <= 0 {
		return fmt.Errorf("%w: key_rotation_interval must be positive", ErrInvalidConfig)
	}
	if c.SessionKeyTTL <= 0 {
		return fmt.Errorf("%w: session_key_ttl must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验传输配置
func (c *TransferConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%w: max_file_size must be positive", ErrInvalidConfig)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("%w: download_dir must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验负载均衡配置
func (c *BalancerConfig) Validate() error {
	if _, ok := types.ParseAlgorithm(c.Algorithm); !ok {
		return fmt.Errorf("%w: unknown load_balancing_algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	if c.BandwidthThreshold <= 0 || c.BandwidthThreshold > 1 {
		return fmt.Errorf("%w: bandwidth_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	if c.LatencyThresholdMs <= 0 {
		return fmt.Errorf("%w: latency_threshold must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验健康检查配置
func (c *HealthConfig) Validate() error {
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("%w: probe_interval must be positive", ErrInvalidConfig)
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout >= c.ProbeInterval {
		return fmt.Errorf("%w: probe_timeout must be positive and shorter than probe_interval", ErrInvalidConfig)
	}
	if c.DegradedThreshold <= 0 || c.UnhealthyThreshold <= c.DegradedThreshold {
		return fmt.Errorf("%w: unhealthy_threshold must exceed degraded_threshold", ErrInvalidConfig)
	}
	if c.RecoveryThreshold <= 0 {
		return fmt.Errorf("%w: recovery_threshold must be positive", ErrInvalidConfig)
	}
	if c.LatencySmoothing <= 0 || c.LatencySmoothing > 1 {
		return fmt.Errorf("%w: latency_smoothing must be in (0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验地理路由配置
func (c *GeoRouterConfig) Validate() error {
	if c.LocationCacheTTL <= 0 {
		return fmt.Errorf("%w: location_cache_ttl must be positive", ErrInvalidConfig)
	}
	if c.LocationCacheSize <= 0 {
		return fmt.Errorf("%w: location_cache_size must be positive", ErrInvalidConfig)
	}
	if c.MaxBackupNodes < 0 {
		return fmt.Errorf("%w: max_backup_nodes must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验带宽管理配置
func (c *BandwidthConfig) Validate() error {
	if c.MonitoringInterval <= 0 {
		return fmt.Errorf("%w: monitoring_interval must be positive", ErrInvalidConfig)
	}
	if c.CongestionThreshold <= 0 || c.CongestionThreshold > 1 {
		return fmt.Errorf("%w: congestion_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	if c.UnderutilizationThreshold < 0 || c.UnderutilizationThreshold >= c.CongestionThreshold {
		return fmt.Errorf("%w: underutilization_threshold must be below congestion_threshold", ErrInvalidConfig)
	}
	if c.BackoffFactor <= 0 || c.BackoffFactor >= 1 {
		return fmt.Errorf("%w: backoff_factor must be in (0, 1)", ErrInvalidConfig)
	}
	if c.CriticalReserveFraction < 0 || c.CriticalReserveFraction >= 1 {
		return fmt.Errorf("%w: critical_reserve_fraction must be in [0, 1)", ErrInvalidConfig)
	}
	if c.HistoryRetention <= 0 {
		return fmt.Errorf("%w: history_retention must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验中继服务器配置
func (c *RelayConfig) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle_timeout must be positive", ErrInvalidConfig)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: cleanup_interval must be positive", ErrInvalidConfig)
	}
	if c.CreateTimeout <= 0 {
		return fmt.Errorf("%w: create_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验控制协议配置
func (c *ProtocolConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr must not be empty", ErrInvalidConfig)
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("%w: max_frame_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验会话控制器配置
func (c *SessionConfig) Validate() error {
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: ping_interval must be positive", ErrInvalidConfig)
	}
	if c.ReconnectMinBackoff <= 0 || c.ReconnectMaxBackoff < c.ReconnectMinBackoff {
		return fmt.Errorf("%w: reconnect backoff bounds must satisfy 0 < min <= max", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max_reconnect_attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Validate 校验指标导出配置
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr must not be empty when metrics enabled", ErrInvalidConfig)
	}
	return nil
}
