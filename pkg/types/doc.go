// Package types 定义 deskrelay 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 deskrelay 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据：
//
//   - 标识类型：SessionID / NodeID / TransferID / KeyID
//   - 会话与节点：Session / RelayNode
//   - 带宽：Allocation / UsageProfile / Adjustment / Snapshot
//   - 地理路由：GeographicRegion / RoutingRule / ClientLocation / RoutingDecision
//   - 加密：KeyPair / SessionKey / EncryptedEnvelope
//   - 文件传输：FileDescriptor / FileTransfer
package types
