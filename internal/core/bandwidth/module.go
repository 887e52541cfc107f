package bandwidth

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
)

// Module 带宽管理模块
var Module = fx.Module("bandwidth",
	fx.Provide(ProvideManager),
)

// ProvideManager 提供带宽管理器并挂接生命周期
func ProvideManager(lc fx.Lifecycle, cfg *config.Config) bandwidthif.Manager {
	m := New(cfg.Bandwidth)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return m.Stop()
		},
	})

	return m
}
