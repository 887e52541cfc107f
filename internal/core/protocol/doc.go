// Package protocol 实现客户端与中继之间的控制协议。
//
// 每帧为 4 字节大端序长度前缀 + CBOR 编码的 Frame 结构。
// TCP 与 WebSocket 两种监听器都产出 FrameConn；
// 绑定会话的载荷用加密信封包裹，AAD 绑定会话 ID 与消息类型。
package protocol
