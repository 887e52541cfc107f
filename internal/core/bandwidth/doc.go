// Package bandwidth 实现带宽管理器
//
// 每个中继节点一个带宽池：执行准入控制（Critical 流量可动用
// 预留容量），维护每 QoS 等级的分配队列，并由监控循环采样
// 利用率。自适应模式下，拥塞时沿 Low → Normal → High 收缩
// 分配（不低于保证值），低利用率时向峰值扩容（单步受限）。
// 每次分配变更都对外发出 Adjustment 事件。
package bandwidth
