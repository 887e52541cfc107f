// Package session 实现端点侧的会话控制器。
//
// 控制器持有一个会话的全部状态：活跃的媒体流集合、
// 加密会话引用、与中继的控制连接和断线重连逻辑。
// 收到带宽调整通知时，通过传输管道的限速挂钩向生产者施加背压。
package session
