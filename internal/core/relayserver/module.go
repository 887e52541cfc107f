package relayserver

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/protocol"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
	healthif "github.com/dep2p/go-deskrelay/pkg/interfaces/health"
	relayif "github.com/dep2p/go-deskrelay/pkg/interfaces/relay"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
)

// Module 中继服务器模块
var Module = fx.Module("relayserver",
	fx.Provide(ProvideServer),
	fx.Provide(func(s *Server) relayif.Server { return s }),
	fx.Provide(ProvideFrontend),
	fx.Invoke(WireHealth),
)

// ProvideServer 提供中继服务器并挂接生命周期
func ProvideServer(lc fx.Lifecycle, cfg *config.Config, engine cryptocore.Engine,
	pipeline transferif.Pipeline, lb balancerif.LoadBalancer,
	router georouterif.Router, bw bandwidthif.Manager) *Server {
	s := New(cfg, engine, pipeline, lb, router, bw)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})
	return s
}

// ProvideFrontend 提供控制协议前端并挂接生命周期
func ProvideFrontend(lc fx.Lifecycle, s *Server, listeners *protocol.Listeners) *Frontend {
	f := NewFrontend(s, listeners)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return f.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return f.Stop()
		},
	})
	return f
}

// WireHealth 把健康检查器接到负载均衡器上
//
// 每个探测周期把平滑延迟与健康状态回写节点注册表；
// 均衡器增删节点时启停对应的探测任务。
func WireHealth(lb balancerif.LoadBalancer, checker healthif.Checker) {
	checker.OnProbe(func(r healthif.ProbeResult) {
		_ = lb.UpdateNodeHealth(r.NodeID, r.Status, r.LatencyMs, r.At)
	})

	if m, ok := lb.(interface{ SetMonitor(healthif.Checker) }); ok {
		m.SetMonitor(checker)
	}
}
