// Package transfer 实现文件传输管道
//
// 发送端把文件切分为固定大小的块，逐块做可选压缩与流式 AEAD 加密，
// 并对明文维护运行中的 SHA-256；接收端执行逆过程并在完成时校验
// 校验和。管道支持暂停、恢复、取消与按会话的速率限制。
package transfer
