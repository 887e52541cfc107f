package protocol

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-deskrelay/config"
)

// Module 控制协议模块
var Module = fx.Module("protocol",
	fx.Provide(ProvideListeners),
)

// Listeners 已启动的控制端口监听器集合
//
// WebSocket 未配置时为 nil。
type Listeners struct {
	TCP       Listener
	WebSocket Listener
}

// All 返回全部非空监听器
func (l *Listeners) All() []Listener {
	out := []Listener{l.TCP}
	if l.WebSocket != nil {
		out = append(out, l.WebSocket)
	}
	return out
}

// Close 关闭全部监听器
func (l *Listeners) Close() error {
	var err error
	for _, ln := range l.All() {
		err = multierr.Append(err, ln.Close())
	}
	return err
}

// ProvideListeners 按配置打开控制端口并挂接生命周期
func ProvideListeners(lc fx.Lifecycle, cfg *config.Config) (*Listeners, error) {
	tcp, err := NewTCPListener(cfg.Protocol.ListenAddr, cfg.Protocol.MaxFrameBytes)
	if err != nil {
		return nil, err
	}

	ls := &Listeners{TCP: tcp}
	if cfg.Protocol.WebSocketAddr != "" {
		ws, err := NewWebSocketListener(cfg.Protocol.WebSocketAddr, cfg.Protocol.MaxFrameBytes)
		if err != nil {
			_ = tcp.Close()
			return nil, err
		}
		ls.WebSocket = ws
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return ls.Close()
		},
	})
	return ls, nil
}
