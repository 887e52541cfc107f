package bandwidth

import "errors"

var (
	// ErrInvalidPool 池参数非法
	ErrInvalidPool = errors.New("invalid pool definition")

	// ErrPoolExists 节点已有带宽池
	ErrPoolExists = errors.New("pool already exists")

	// ErrPoolMissing 节点没有带宽池
	ErrPoolMissing = errors.New("pool not found")

	// ErrInvalidRequest 带宽请求非法
	ErrInvalidRequest = errors.New("invalid bandwidth request")

	// ErrAlreadyAllocated 会话已持有分配
	ErrAlreadyAllocated = errors.New("session already allocated")

	// ErrNoSuitablePool 没有池能满足请求
	ErrNoSuitablePool = errors.New("no suitable pool")

	// ErrAllocationMissing 会话没有分配
	ErrAllocationMissing = errors.New("allocation not found")

	// ErrAdjustOutOfRange 调整值越过 guaranteed/peak 约束
	ErrAdjustOutOfRange = errors.New("adjustment out of range")

	// ErrAlreadyRunning 监控循环已在运行
	ErrAlreadyRunning = errors.New("bandwidth manager already running")
)
