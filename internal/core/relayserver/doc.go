// Package relayserver 实现中继服务器组合根。
//
// 接收会话请求，依次调用地理路由器、负载均衡器和带宽管理器，
// 独占持有会话表并执行周期清理。任一步骤失败时回滚此前的
// 全部操作：先释放带宽分配，再释放节点分配。
package relayserver
