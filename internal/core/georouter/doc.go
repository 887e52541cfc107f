// Package georouter 实现地理路由器
//
// 把客户端 IP 解析为位置（带 TTL 缓存），确定归属区域，
// 按优先级应用运维路由规则，在配额允许的区域内挑选节点，
// 输出带备份节点、估计延迟和置信度的路由决策。
package georouter
