package georouter

import "errors"

var (
	// ErrLocationRequired 路由需要客户端位置
	ErrLocationRequired = errors.New("client location required")

	// ErrLocationUnknown 定位服务无法解析该 IP
	ErrLocationUnknown = errors.New("location unknown for ip")

	// ErrInvalidRegion 区域定义非法
	ErrInvalidRegion = errors.New("invalid region definition")

	// ErrInvalidRule 路由规则非法
	ErrInvalidRule = errors.New("invalid routing rule")

	// ErrNoRegion 没有可用区域
	ErrNoRegion = errors.New("no region available")

	// ErrNoRouteAvailable 没有区域能容纳该请求
	ErrNoRouteAvailable = errors.New("no route available")
)
