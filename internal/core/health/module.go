package health

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	healthif "github.com/dep2p/go-deskrelay/pkg/interfaces/health"
)

// Module 健康检查模块
var Module = fx.Module("health",
	fx.Provide(ProvideProber),
	fx.Provide(ProvideChecker),
)

// ProvideProber 提供默认 TCP 探测器
func ProvideProber(cfg *config.Config) healthif.Prober {
	return &TCPProber{Timeout: time.Duration(cfg.Health.ProbeTimeout)}
}

// ProvideChecker 提供健康检查器并挂接生命周期
func ProvideChecker(lc fx.Lifecycle, cfg *config.Config, prober healthif.Prober) healthif.Checker {
	c := New(cfg.Health, prober)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.Stop()
			return nil
		},
	})

	return c
}
