package deskrelay

import (
	"context"
	"net"

	"go.uber.org/multierr"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/crypto"
	"github.com/dep2p/go-deskrelay/internal/core/protocol"
	"github.com/dep2p/go-deskrelay/internal/core/session"
	"github.com/dep2p/go-deskrelay/internal/core/transfer"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// ConnectOptions 会话连接参数
type ConnectOptions = session.ConnectOptions

// Client 中继客户端
//
// 封装端点侧会话控制器：握手建立加密会话，
// 心跳保活，断线自动重连，接收服务端的带宽调整。
type Client struct {
	cfg      *config.Config
	ctrl     *session.Controller
	pipeline *transfer.Manager
}

// NewClient 创建指向中继地址的客户端
//
// cfg 为 nil 时使用默认配置。
func NewClient(clientID, relayAddr string, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := crypto.NewManager(cfg.Crypto)
	if _, err := engine.GenerateIdentity(); err != nil {
		return nil, err
	}

	maxBytes := cfg.Protocol.MaxFrameBytes
	dial := func(ctx context.Context) (protocol.FrameConn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", relayAddr)
		if err != nil {
			return nil, err
		}
		return protocol.NewFrameConn(conn, maxBytes), nil
	}

	pipeline := transfer.NewManager(cfg.Transfer, engine)
	ctrl := session.NewController(cfg.Session, clientID, dial, engine, pipeline)

	return &Client{
		cfg:      cfg,
		ctrl:     ctrl,
		pipeline: pipeline,
	}, nil
}

// Connect 建立会话
func (c *Client) Connect(ctx context.Context, opts ConnectOptions) error {
	return c.ctrl.Connect(ctx, opts)
}

// Ping 立即发送一次心跳
func (c *Client) Ping() error {
	return c.ctrl.Ping()
}

// ActivateStream 激活一条媒体流
func (c *Client) ActivateStream(kind types.StreamKind) error {
	return c.ctrl.ActivateStream(kind)
}

// DeactivateStream 停用一条媒体流
func (c *Client) DeactivateStream(kind types.StreamKind) error {
	return c.ctrl.DeactivateStream(kind)
}

// ActiveStreams 返回当前活跃的媒体流类别
func (c *Client) ActiveStreams() []types.StreamKind {
	return c.ctrl.ActiveStreams()
}

// State 返回当前会话状态
func (c *Client) State() types.SessionState {
	return c.ctrl.State()
}

// Session 返回会话快照
func (c *Client) Session() types.Session {
	return c.ctrl.Session()
}

// Transfers 返回传输管道（文件收发）
func (c *Client) Transfers() transferif.Pipeline {
	return c.pipeline
}

// Close 终止会话并释放资源
func (c *Client) Close() error {
	return multierr.Append(c.ctrl.Close(), c.pipeline.Close())
}
