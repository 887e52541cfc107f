package transfer

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/pkg/interfaces/cryptocore"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
)

// Module 文件传输模块
var Module = fx.Module("transfer",
	fx.Provide(ProvidePipeline),
)

// ProvidePipeline 提供传输管道并挂接生命周期
func ProvidePipeline(lc fx.Lifecycle, cfg *config.Config, engine cryptocore.Engine) transferif.Pipeline {
	p := NewManager(cfg.Transfer, engine)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})

	return p
}
