package balancer

import "errors"

var (
	// ErrInvalidNode 节点定义非法
	ErrInvalidNode = errors.New("invalid node definition")

	// ErrNodeExists 节点已注册
	ErrNodeExists = errors.New("node already registered")

	// ErrNodeMissing 节点不存在
	ErrNodeMissing = errors.New("node not found")

	// ErrNoAvailableNode 没有满足候选条件的节点
	ErrNoAvailableNode = errors.New("no available relay node")

	// ErrAlreadyAssigned 会话已有分配
	ErrAlreadyAssigned = errors.New("session already assigned")

	// ErrAssignmentMissing 会话没有分配记录
	ErrAssignmentMissing = errors.New("assignment not found")

	// ErrLocationRequired 地理算法需要客户端坐标
	ErrLocationRequired = errors.New("client location required for geographic algorithm")
)
