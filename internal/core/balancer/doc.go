// Package balancer 实现负载均衡器
//
// 维护中继节点注册表，按可选算法为新会话挑选节点，并跟踪
// 每个节点的会话数与带宽占用。节点健康与延迟由健康检查器
// 通过回调写入；带宽占用由带宽管理器写入。
package balancer
