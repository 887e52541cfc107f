// Package health 实现健康检查器
//
// 为每个受监控节点运行独立的周期探测任务：成功时用 EWMA 平滑
// 延迟并标记 Healthy；连续失败沿 Healthy → Degraded → Unhealthy
// 阶梯降级；恢复需要连续 N 次成功。Maintenance 由运维设置，
// 阻断所有自动迁移。
package health
