package georouter

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
)

// Module 地理路由模块
var Module = fx.Module("georouter",
	fx.Provide(ProvideLocationService),
	fx.Provide(ProvideRouter),
)

// ProvideLocationService 提供默认的静态定位服务
func ProvideLocationService() georouterif.LocationService {
	return NewStaticLocationService()
}

// ProvideRouter 提供地理路由器
//
// 节点快照取自负载均衡器。
func ProvideRouter(cfg *config.Config, svc georouterif.LocationService, lb balancerif.LoadBalancer) georouterif.Router {
	return New(cfg.GeoRouter, svc, lb)
}
