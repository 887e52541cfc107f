package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
	relayif "github.com/dep2p/go-deskrelay/pkg/interfaces/relay"
)

// Module 指标导出模块
var Module = fx.Module("metrics",
	fx.Provide(ProvideExporter),
	fx.Invoke(RunServer),
)

// ProvideExporter 提供指标导出器
func ProvideExporter(cfg *config.Config, server relayif.Server, lb balancerif.LoadBalancer,
	bw bandwidthif.Manager, router georouterif.Router) *Exporter {
	if !cfg.GeoRouter.Enabled {
		router = nil
	}
	return NewExporter(server, lb, bw, router)
}

// RunServer 按配置启动指标 HTTP 服务并挂接生命周期
func RunServer(lc fx.Lifecycle, cfg *config.Config, exporter *Exporter) error {
	if !cfg.Metrics.Enabled {
		return nil
	}

	srv, err := NewServer(cfg.Metrics.ListenAddr, exporter)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
	return nil
}
