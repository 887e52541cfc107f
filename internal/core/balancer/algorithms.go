package balancer

import (
	"github.com/dep2p/go-deskrelay/pkg/types"
)

// insufficientBandwidthPenalty 自适应算法中带宽不足的罚分
const insufficientBandwidthPenalty = 1000.0

// selectLocked 按当前算法在候选集中选择节点（须持锁）
func (b *Balancer) selectLocked(candidates []*types.RelayNode, loc *types.ClientLocation, estimatedMbps float64) (*types.RelayNode, error) {
	switch b.algo {
	case types.AlgoRoundRobin:
		return b.roundRobinLocked(candidates), nil
	case types.AlgoWeightedRoundRobin:
		return weightedRoundRobin(candidates), nil
	case types.AlgoLeastConnections:
		return leastConnections(candidates), nil
	case types.AlgoWeightedLeastConnections:
		return b.weightedLeastConnections(candidates), nil
	case types.AlgoGeographic:
		if loc == nil {
			return nil, ErrLocationRequired
		}
		return geographic(candidates, loc.Coords), nil
	case types.AlgoPerformance:
		return performance(candidates), nil
	case types.AlgoAdaptive:
		return adaptive(candidates, loc, estimatedMbps), nil
	default:
		return b.roundRobinLocked(candidates), nil
	}
}

// roundRobinLocked 轮询：索引对候选列表长度取模
func (b *Balancer) roundRobinLocked(candidates []*types.RelayNode) *types.RelayNode {
	n := candidates[b.rrIndex%uint64(len(candidates))]
	b.rrIndex++
	return n
}

// weightedRoundRobin 加权轮询：权重 = 剩余容量 × 优先级，取最大
func weightedRoundRobin(candidates []*types.RelayNode) *types.RelayNode {
	best := candidates[0]
	bestWeight := nodeWeight(best)
	for _, n := range candidates[1:] {
		if w := nodeWeight(n); w > bestWeight {
			best, bestWeight = n, w
		}
	}
	return best
}

// nodeWeight 节点权重
func nodeWeight(n *types.RelayNode) int {
	return (n.MaxSessions - n.CurrentSessions) * n.Priority
}

// leastConnections 最少连接：取当前会话数最小
func leastConnections(candidates []*types.RelayNode) *types.RelayNode {
	best := candidates[0]
	for _, n := range candidates[1:] {
		if n.CurrentSessions < best.CurrentSessions {
			best = n
		}
	}
	return best
}

// weightedLeastConnections 加权最少连接
//
// 评分 = perf_weight × 延迟 + capacity_weight × 负载比 × 100，取最小。
func (b *Balancer) weightedLeastConnections(candidates []*types.RelayNode) *types.RelayNode {
	best := candidates[0]
	bestScore := b.cfg.PerfWeight*best.LatencyMs + b.cfg.CapacityWeight*best.LoadRatio()*100
	for _, n := range candidates[1:] {
		score := b.cfg.PerfWeight*n.LatencyMs + b.cfg.CapacityWeight*n.LoadRatio()*100
		if score < bestScore {
			best, bestScore = n, score
		}
	}
	return best
}

// geographic 地理最近：Haversine 距离最小
func geographic(candidates []*types.RelayNode, coords types.Coordinates) *types.RelayNode {
	best := candidates[0]
	bestDist := coords.DistanceKm(best.Location.Coords)
	for _, n := range candidates[1:] {
		if d := coords.DistanceKm(n.Location.Coords); d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// performance 性能优先：延迟 + 负载比 × 100，取最小
func performance(candidates []*types.RelayNode) *types.RelayNode {
	best := candidates[0]
	bestScore := best.LatencyMs + best.LoadRatio()*100
	for _, n := range candidates[1:] {
		score := n.LatencyMs + n.LoadRatio()*100
		if score < bestScore {
			best, bestScore = n, score
		}
	}
	return best
}

// adaptive 自适应评分，取最小
//
// 评分 = 延迟 + 负载比×100 + 距离/100 + 带宽不足罚分 − 优先级×10。
// 客户端坐标缺失时距离项为 0。
func adaptive(candidates []*types.RelayNode, loc *types.ClientLocation, estimatedMbps float64) *types.RelayNode {
	best := candidates[0]
	bestScore := adaptiveScore(best, loc, estimatedMbps)
	for _, n := range candidates[1:] {
		if score := adaptiveScore(n, loc, estimatedMbps); score < bestScore {
			best, bestScore = n, score
		}
	}
	return best
}

// adaptiveScore 计算单个节点的自适应评分
func adaptiveScore(n *types.RelayNode, loc *types.ClientLocation, estimatedMbps float64) float64 {
	score := n.LatencyMs + n.LoadRatio()*100
	if loc != nil {
		score += loc.Coords.DistanceKm(n.Location.Coords) / 100
	}
	if n.BandwidthCapMbps-n.CurrentBandwidthMbps < estimatedMbps {
		score += insufficientBandwidthPenalty
	}
	score -= float64(n.Priority) * 10
	return score
}
