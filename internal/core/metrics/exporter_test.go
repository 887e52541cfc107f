package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-deskrelay/config"
	"github.com/dep2p/go-deskrelay/internal/core/balancer"
	"github.com/dep2p/go-deskrelay/internal/core/bandwidth"
	"github.com/dep2p/go-deskrelay/internal/core/crypto"
	"github.com/dep2p/go-deskrelay/internal/core/relayserver"
	relayif "github.com/dep2p/go-deskrelay/pkg/interfaces/relay"
	transferif "github.com/dep2p/go-deskrelay/pkg/interfaces/transfer"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// noopPipeline 空管道桩
type noopPipeline struct{}

var _ transferif.Pipeline = (*noopPipeline)(nil)

func (p *noopPipeline) Send(context.Context, types.SessionID, string, transferif.ChunkSink) (types.TransferID, error) {
	return "", nil
}

func (p *noopPipeline) Receive(context.Context, types.SessionID, types.FileDescriptor, transferif.ChunkSource) (types.TransferID, error) {
	return "", nil
}

func (p *noopPipeline) Pause(types.TransferID) error                          { return nil }
func (p *noopPipeline) Resume(types.TransferID) error                         { return nil }
func (p *noopPipeline) Cancel(types.TransferID) error                         { return nil }
func (p *noopPipeline) Transfer(types.TransferID) (*types.FileTransfer, bool) { return nil, false }
func (p *noopPipeline) Transfers() []*types.FileTransfer                      { return nil }
func (p *noopPipeline) SetRateLimit(types.SessionID, float64)                 {}
func (p *noopPipeline) Descriptor(types.TransferID) (*types.FileDescriptor, bool) {
	return nil, false
}

// newTestExporter 搭建真实组件并返回导出器和中继服务器
func newTestExporter(t *testing.T) (*Exporter, relayif.Server) {
	t.Helper()

	cfg := config.NewConfig()
	cfg.GeoRouter.Enabled = false
	cfg.Balancer.Algorithm = "round_robin"

	engine := crypto.NewManager(cfg.Crypto)
	_, err := engine.GenerateIdentity()
	require.NoError(t, err)

	lb := balancer.New(cfg.Balancer)
	bw := bandwidth.New(cfg.Bandwidth)
	server := relayserver.New(cfg, engine, &noopPipeline{}, lb, nil, bw)

	require.NoError(t, lb.AddNode(&types.RelayNode{
		ID:               "node-a",
		Endpoint:         "relay-node-a:7480",
		MaxSessions:      10,
		BandwidthCapMbps: 1000,
		Health:           types.HealthHealthy,
		Priority:         5,
	}))
	require.NoError(t, bw.AddPool("node-a", 1000))

	return NewExporter(server, lb, bw, nil), server
}

// ============================================================================
//                              导出器
// ============================================================================

func TestExporterSessionCounters(t *testing.T) {
	exporter, server := newTestExporter(t)
	ctx := context.Background()

	d1, err := server.CreateSession(ctx, "1.2.3.4", 100, types.QoSNormal)
	require.NoError(t, err)
	_, err = server.CreateSession(ctx, "1.2.3.4", 50, types.QoSHigh)
	require.NoError(t, err)
	require.NoError(t, server.Activate(d1.ID))

	expected := `
# HELP deskrelay_sessions_created_total 会话创建总数
# TYPE deskrelay_sessions_created_total counter
deskrelay_sessions_created_total 2
# HELP deskrelay_session_errors_total 会话创建/运行错误总数
# TYPE deskrelay_session_errors_total counter
deskrelay_session_errors_total 0
`
	require.NoError(t, testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"deskrelay_sessions_created_total", "deskrelay_session_errors_total"))
}

func TestExporterSessionStateGauges(t *testing.T) {
	exporter, server := newTestExporter(t)
	ctx := context.Background()

	d1, err := server.CreateSession(ctx, "1.2.3.4", 100, types.QoSNormal)
	require.NoError(t, err)
	_, err = server.CreateSession(ctx, "1.2.3.4", 100, types.QoSNormal)
	require.NoError(t, err)
	require.NoError(t, server.Activate(d1.ID))

	expected := `
# HELP deskrelay_sessions_active 当前各状态的会话数
# TYPE deskrelay_sessions_active gauge
deskrelay_sessions_active{state="active"} 1
deskrelay_sessions_active{state="connecting"} 1
`
	require.NoError(t, testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"deskrelay_sessions_active"))
}

func TestExporterPoolGauges(t *testing.T) {
	exporter, server := newTestExporter(t)
	ctx := context.Background()

	_, err := server.CreateSession(ctx, "1.2.3.4", 200, types.QoSNormal)
	require.NoError(t, err)

	expected := `
# HELP deskrelay_pool_total_mbps 带宽池总容量
# TYPE deskrelay_pool_total_mbps gauge
deskrelay_pool_total_mbps{node="node-a"} 1000
# HELP deskrelay_pool_allocated_mbps 带宽池已分配容量
# TYPE deskrelay_pool_allocated_mbps gauge
deskrelay_pool_allocated_mbps{node="node-a"} 200
`
	require.NoError(t, testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"deskrelay_pool_total_mbps", "deskrelay_pool_allocated_mbps"))
}

func TestExporterNodeGauges(t *testing.T) {
	exporter, server := newTestExporter(t)
	ctx := context.Background()

	_, err := server.CreateSession(ctx, "1.2.3.4", 100, types.QoSNormal)
	require.NoError(t, err)

	expected := `
# HELP deskrelay_node_sessions 节点当前会话数
# TYPE deskrelay_node_sessions gauge
deskrelay_node_sessions{node="node-a"} 1
# HELP deskrelay_node_utilization 节点会话负载比（0-1）
# TYPE deskrelay_node_utilization gauge
deskrelay_node_utilization{node="node-a"} 0.1
`
	require.NoError(t, testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"deskrelay_node_sessions", "deskrelay_node_utilization"))
}

func TestExporterWithoutRouterOmitsRouteMetrics(t *testing.T) {
	exporter, _ := newTestExporter(t)

	count := testutil.CollectAndCount(exporter,
		"deskrelay_route_decisions_total",
		"deskrelay_location_cache_hits_total",
		"deskrelay_location_cache_misses_total")
	assert.Zero(t, count)
}

// ============================================================================
//                              HTTP 服务
// ============================================================================

func TestMetricsHTTPEndpoint(t *testing.T) {
	exporter, server := newTestExporter(t)
	ctx := context.Background()

	_, err := server.CreateSession(ctx, "1.2.3.4", 100, types.QoSNormal)
	require.NoError(t, err)

	srv, err := NewServer("127.0.0.1:0", exporter)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop(context.Background()) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "deskrelay_sessions_created_total 1")
	assert.Contains(t, string(body), `deskrelay_node_sessions{node="node-a"} 1`)
}
