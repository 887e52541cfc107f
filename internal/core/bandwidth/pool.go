package bandwidth

import (
	"time"

	bandwidthif "github.com/dep2p/go-deskrelay/pkg/interfaces/bandwidth"
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// pool 单个节点的带宽池
//
// 不变量：total = allocated + available + reserved，均非负。
// reserved 以 reserveTarget 为目标；Critical 流量挤占预留时
// 有效预留随剩余容量收缩。
type pool struct {
	node          types.NodeID
	total         float64
	reserveTarget float64

	allocatedMbps float64
	allocations   map[types.SessionID]*types.Allocation
	queues        map[types.QoSClass][]types.SessionID
	usage         map[types.SessionID]float64
	history       []types.Snapshot
}

// newPool 创建带宽池
func newPool(node types.NodeID, totalMbps, reserveFraction float64) *pool {
	return &pool{
		node:          node,
		total:         totalMbps,
		reserveTarget: totalMbps * reserveFraction,
		allocations:   make(map[types.SessionID]*types.Allocation),
		queues:        make(map[types.QoSClass][]types.SessionID),
		usage:         make(map[types.SessionID]float64),
	}
}

// reserved 有效预留容量
func (p *pool) reserved() float64 {
	if free := p.total - p.allocatedMbps; free < p.reserveTarget {
		return free
	}
	return p.reserveTarget
}

// available 非 Critical 流量可用的容量
func (p *pool) available() float64 {
	v := p.total - p.allocatedMbps - p.reserved()
	if v < 0 {
		return 0
	}
	return v
}

// utilization 利用率（allocated / total）
func (p *pool) utilization() float64 {
	if p.total <= 0 {
		return 0
	}
	return p.allocatedMbps / p.total
}

// admits 检查池能否容纳请求
//
// Critical 可消费预留；其他等级不得把可用容量压到预留之下。
func (p *pool) admits(requested float64, priority types.QoSClass) bool {
	if priority == types.QoSCritical {
		return p.total-p.allocatedMbps >= requested
	}
	return p.available() >= requested
}

// admit 登记一个新分配
func (p *pool) admit(a *types.Allocation) {
	p.allocations[a.SessionID] = a
	p.allocatedMbps += a.AllocatedMbps
	p.queues[a.Priority] = append(p.queues[a.Priority], a.SessionID)
}

// evict 移除分配并返还容量
func (p *pool) evict(sessionID types.SessionID) *types.Allocation {
	a, ok := p.allocations[sessionID]
	if !ok {
		return nil
	}
	delete(p.allocations, sessionID)
	delete(p.usage, sessionID)
	p.allocatedMbps -= a.AllocatedMbps

	q := p.queues[a.Priority]
	for i, id := range q {
		if id == sessionID {
			p.queues[a.Priority] = append(q[:i], q[i+1:]...)
			break
		}
	}
	return a
}

// resize 调整一个分配并同步池的总量
func (p *pool) resize(a *types.Allocation, newMbps float64) {
	p.allocatedMbps += newMbps - a.AllocatedMbps
	a.AllocatedMbps = newMbps
}

// usedMbps 所有会话上报用量之和
func (p *pool) usedMbps() float64 {
	var sum float64
	for _, v := range p.usage {
		sum += v
	}
	return sum
}

// queueDepths 各等级队列深度快照
func (p *pool) queueDepths() map[types.QoSClass]int {
	depths := make(map[types.QoSClass]int, len(types.QoSClasses))
	for _, class := range types.QoSClasses {
		depths[class] = len(p.queues[class])
	}
	return depths
}

// stats 池状态快照
func (p *pool) stats() bandwidthif.PoolStats {
	return bandwidthif.PoolStats{
		NodeID:        p.node,
		TotalMbps:     p.total,
		AllocatedMbps: p.allocatedMbps,
		AvailableMbps: p.available(),
		ReservedMbps:  p.reserved(),
		Allocations:   len(p.allocations),
		QueueDepths:   p.queueDepths(),
	}
}

// snapshot 记录一次监控采样并裁剪历史
func (p *pool) snapshot(at time.Time, retention int) types.Snapshot {
	s := types.Snapshot{
		At:             at,
		AllocatedMbps:  p.allocatedMbps,
		UsedMbps:       p.usedMbps(),
		Utilization:    p.utilization(),
		ActiveSessions: len(p.allocations),
		QueueDepths:    p.queueDepths(),
	}
	p.history = append(p.history, s)
	if retention > 0 && len(p.history) > retention {
		p.history = p.history[len(p.history)-retention:]
	}
	return s
}
