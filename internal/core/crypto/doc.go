// Package crypto 实现端到端加密引擎
//
// 在不可信中继两侧的对等方之间提供机密性、完整性和前向保密：
//
//   - 身份：X25519 长期密钥对，按配置生命周期定时轮换
//   - 会话密钥：临时 X25519 DH + HKDF-SHA256（随机 32 字节盐，
//     固定 info 标签），每个会话独立派生，单会话泄露不影响其他会话
//   - AEAD：AES-256-GCM，96 位 nonce，128 位标签
//
// 两类 nonce 策略：
//   - 控制消息使用随机 nonce，容忍乱序投递
//   - 流式数据使用确定性 nonce（4 零字节 ‖ 小端序 seq），
//     避免逐块携带 nonce 的开销；seq 在同一密钥下绝不重复，
//     接近耗尽时强制轮换
//
// 会话密钥状态机：Pending → Active → Expired → Purged，
// 加解密只在 Active 状态下允许。
package crypto
