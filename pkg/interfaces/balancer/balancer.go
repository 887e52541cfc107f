// Package balancer 定义负载均衡器接口
package balancer

import (
	"time"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// Assignment 会话到节点的分配记录
type Assignment struct {
	// SessionID 会话标识
	SessionID types.SessionID

	// NodeID 分配的节点
	NodeID types.NodeID

	// AssignedAt 分配时间
	AssignedAt time.Time

	// Algorithm 分配时使用的算法
	Algorithm types.Algorithm

	// ClientLocation 客户端位置提示（可能为 nil）
	ClientLocation *types.ClientLocation

	// EstimatedMbps 估计带宽
	EstimatedMbps float64
}

// RemoveResult 节点移除结果
type RemoveResult struct {
	// Reassigned 成功改派的会话
	Reassigned map[types.SessionID]types.NodeID

	// Dropped 无法改派、被放弃的会话
	Dropped []types.SessionID
}

// LoadBalancer 负载均衡器
//
// 维护中继节点集合，按可选算法为新会话选择节点，跟踪节点负载。
type LoadBalancer interface {
	// AddNode 注册节点并开始健康探测
	AddNode(node *types.RelayNode) error

	// RemoveNode 停止探测并移除节点
	//
	// 钉在该节点上的会话按原始提示重新分配；
	// 无法改派的会话在结果中显式列出。
	RemoveNode(id types.NodeID) (*RemoveResult, error)

	// AssignSession 为会话选择节点
	//
	// 成功时递增所选节点的会话计数并返回节点 ID。
	AssignSession(sessionID types.SessionID, loc *types.ClientLocation, estimatedMbps float64) (types.NodeID, error)

	// ReleaseSession 释放会话的分配（计数饱和递减至 0）
	ReleaseSession(sessionID types.SessionID) error

	// SetAlgorithm 原子更新算法，下一次 AssignSession 生效
	SetAlgorithm(algo types.Algorithm)

	// Algorithm 返回当前算法
	Algorithm() types.Algorithm

	// Node 返回节点快照
	Node(id types.NodeID) (*types.RelayNode, bool)

	// Nodes 返回所有节点快照
	Nodes() []*types.RelayNode

	// Assignment 返回会话的分配记录
	Assignment(sessionID types.SessionID) (*Assignment, bool)

	// UpdateNodeHealth 更新节点健康状态与延迟（由健康检查器调用）
	UpdateNodeHealth(id types.NodeID, health types.HealthStatus, latencyMs float64, checkedAt time.Time) error

	// UpdateNodeBandwidth 更新节点当前带宽分配（由带宽管理器调用）
	UpdateNodeBandwidth(id types.NodeID, currentMbps float64) error
}
