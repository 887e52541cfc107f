// Package metrics 导出 Prometheus 指标。
//
// Exporter 实现 prometheus.Collector，抓取时从中继服务器、
// 负载均衡器、带宽管理器和地理路由器拉取实时快照，
// 指标统一以 deskrelay_ 前缀命名。
package metrics
