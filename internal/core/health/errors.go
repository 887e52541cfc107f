package health

import "errors"

var (
	// ErrInvalidNode 节点定义非法
	ErrInvalidNode = errors.New("invalid node definition")

	// ErrAlreadyMonitored 节点已在监控中
	ErrAlreadyMonitored = errors.New("node already monitored")

	// ErrNotMonitored 节点不在监控中
	ErrNotMonitored = errors.New("node not monitored")

	// ErrCheckerStopped 检查器已停止
	ErrCheckerStopped = errors.New("health checker stopped")
)
