package crypto

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
)

// Module 加密引擎模块
var Module = fx.Module("crypto",
	fx.Provide(ProvideEngine),
)

// ProvideEngine 提供加密引擎并挂接生命周期
func ProvideEngine(lc fx.Lifecycle, cfg *config.Config) cryptocore.Engine {
	m := NewManager(cfg.Crypto)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := m.GenerateIdentity(); err != nil {
				return err
			}
			return m.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return m.Stop()
		},
	})

	return m
}
