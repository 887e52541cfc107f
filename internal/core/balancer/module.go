package balancer

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
)

// Module 负载均衡模块
var Module = fx.Module("balancer",
	fx.Provide(ProvideBalancer),
)

// ProvideBalancer 提供负载均衡器
func ProvideBalancer(cfg *config.Config) balancerif.LoadBalancer {
	return New(cfg.Balancer)
}
