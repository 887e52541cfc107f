package deskrelay

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/balancer"
	"github.com/dep2p/go-deskrelay/internal/core/bandwidth"
	"github.com/dep2p/go-deskrelay/internal/core/crypto"
	"github.com/dep2p/go-deskrelay/internal/core/georouter"
	"github.com/dep2p/go-deskrelay/internal/core/health"
	"github.com/dep2p/go-deskrelay/internal/core/metrics"
	"github.com/dep2p/go-deskrelay/internal/core/protocol"
	"github.com/dep2p/go-deskrelay/internal/core/relayserver"
	"github.com/dep2p/go-deskrelay/internal/core/transfer"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
)

// buildFxApp 组装 Fx 应用
//
// 模块按依赖排列：加密与传输是所有上层的底座，
// 均衡器/路由器/带宽管理器供组合根调用，
// 协议前端和指标导出器最后挂上。
func buildFxApp(s *settings, h *handles) (*fx.App, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	opts := []fx.Option{
		fx.Supply(s.cfg),

		crypto.Module,
		transfer.Module,
		balancer.Module,
		health.Module,
		georouter.Module,
		bandwidth.Module,
		protocol.Module,
		relayserver.Module,
		metrics.Module,
	}

	if s.state != nil {
		state := s.state
		opts = append(opts, fx.Invoke(
			func(srv *relayserver.Server, lb balancerif.LoadBalancer,
				bw bandwidthif.Manager, router georouterif.Router) error {
				return seedState(s.cfg, state, srv, lb, bw, router)
			}))
	}

	opts = append(opts,
		fx.Populate(&h.Server, &h.Balancer, &h.Bandwidth, &h.Router, &h.Listeners),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	opts = append(opts, s.fxOptions...)

	return fx.New(opts...), nil
}

// seedState 把持久化状态灌入各组件
//
// 节点进入均衡器并按带宽上限建池；区域和规则进入路由器；
// QoS 策略覆盖组合根的准入参数。
func seedState(cfg *config.Config, state *config.PersistedState, srv *relayserver.Server,
	lb balancerif.LoadBalancer, bw bandwidthif.Manager, router georouterif.Router) error {
	for _, node := range state.Nodes {
		if err := lb.AddNode(node); err != nil {
			return fmt.Errorf("seed node %s: %w", node.ID, err)
		}
		if cfg.Bandwidth.Enabled {
			if err := bw.AddPool(node.ID, node.BandwidthCapMbps); err != nil {
				return fmt.Errorf("seed pool %s: %w", node.ID, err)
			}
		}
	}

	if cfg.GeoRouter.Enabled && router != nil {
		for _, region := range state.Regions {
			if err := router.AddRegion(region); err != nil {
				return fmt.Errorf("seed region %s: %w", region.ID, err)
			}
		}
		for _, rule := range state.Rules {
			if err := router.AddRule(rule); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
		}
	}

	if len(state.QoSPolicies) > 0 {
		if err := srv.ApplyQoSPolicies(state.QoSPolicies); err != nil {
			return err
		}
	}
	return nil
}
