package deskrelay

import (
	"context"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/protocol"
	balancerif "github.com/dep2p/go-deskrelay/pkg/interfaces/balancer"
	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	georouterif "github.com/dep2p/go-deskrelay/pkg/interfaces/georouter"
	relayif "github.com/dep2p/go-deskrelay/pkg/interfaces/relay"

	"go.uber.org/fx"
)

// handles 从 Fx 容器取出的组件句柄
type handles struct {
	Server    relayif.Server
	Balancer  balancerif.LoadBalancer
	Bandwidth bandwidthif.Manager
	Router    georouterif.Router
	Listeners *protocol.Listeners
}

// Relay 中继服务实例
//
// 封装 Fx 应用生命周期：Start 打开控制端口、启动健康探测、
// 清理扫描和指标导出；Stop 逆序关停并终止所有存活会话。
type Relay struct {
	cfg *config.Config
	app *fx.App
	h   handles
}

// New 构建中继实例
func New(opts ...Option) (*Relay, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	r := &Relay{cfg: s.cfg}
	app, err := buildFxApp(s, &r.h)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, err
	}
	r.app = app
	return r, nil
}

// Start 启动全部组件
func (r *Relay) Start(ctx context.Context) error {
	return r.app.Start(ctx)
}

// Stop 关停全部组件
func (r *Relay) Stop(ctx context.Context) error {
	return r.app.Stop(ctx)
}

// Config 返回生效的配置
func (r *Relay) Config() *config.Config {
	return r.cfg
}

// Server 返回中继服务器（组合根）
func (r *Relay) Server() relayif.Server {
	return r.h.Server
}

// Balancer 返回负载均衡器
func (r *Relay) Balancer() balancerif.LoadBalancer {
	return r.h.Balancer
}

// Bandwidth 返回带宽管理器
func (r *Relay) Bandwidth() bandwidthif.Manager {
	return r.h.Bandwidth
}

// Router 返回地理路由器
func (r *Relay) Router() georouterif.Router {
	return r.h.Router
}

// ControlAddr 返回 TCP 控制端口的实际监听地址
func (r *Relay) ControlAddr() string {
	return r.h.Listeners.TCP.Addr().String()
}
