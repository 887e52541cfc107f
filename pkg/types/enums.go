package types

// ============================================================================
//                              HealthStatus - 节点健康状态
// ============================================================================

// HealthStatus 中继节点健康状态
type HealthStatus int

const (
	// HealthUnknown 未知状态（尚未探测）
	HealthUnknown HealthStatus = iota
	// HealthHealthy 健康
	HealthHealthy
	// HealthDegraded 降级（连续探测失败，但未达到不可用阈值）
	HealthDegraded
	// HealthUnhealthy 不可用
	HealthUnhealthy
	// HealthMaintenance 维护中（运维人员设置，阻断自动状态迁移）
	HealthMaintenance
)

// String 返回健康状态的字符串表示
func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              QoSClass - 服务质量等级
// ============================================================================

// QoSClass 服务质量等级
//
// 决定带宽管理器的抢占与预留策略：
// Critical 流量可以使用池内预留容量，拥塞控制按 Low → Normal → High
// 顺序收缩，Critical 永不收缩。
type QoSClass int

const (
	// QoSCritical 关键流量（如屏幕控制通道）
	QoSCritical QoSClass = iota
	// QoSHigh 高优先级（如实时音频）
	QoSHigh
	// QoSNormal 普通优先级（如屏幕画面流）
	QoSNormal
	// QoSLow 低优先级（如后台文件传输）
	QoSLow
)

// String 返回 QoS 等级的字符串表示
func (q QoSClass) String() string {
	switch q {
	case QoSCritical:
		return "critical"
	case QoSHigh:
		return "high"
	case QoSNormal:
		return "normal"
	case QoSLow:
		return "low"
	default:
		return "unknown"
	}
}

// QoSClasses 所有 QoS 等级，按优先级从高到低排列
var QoSClasses = []QoSClass{QoSCritical, QoSHigh, QoSNormal, QoSLow}

// CongestionOrder 拥塞控制的收缩顺序（从低优先级开始）
//
// Critical 不在列表中：关键流量永不被拥塞控制收缩。
var CongestionOrder = []QoSClass{QoSLow, QoSNormal, QoSHigh}

// ParseQoSClass 解析 QoS 等级名称
func ParseQoSClass(s string) (QoSClass, bool) {
	switch s {
	case "critical":
		return QoSCritical, true
	case "high":
		return QoSHigh, true
	case "normal":
		return QoSNormal, true
	case "low":
		return QoSLow, true
	default:
		return QoSNormal, false
	}
}

// ============================================================================
//                              SessionState - 会话状态
// ============================================================================

// SessionState 会话生命周期状态
//
// 状态机：Connecting → Connected → Active ↔ Idle → Disconnecting → Disconnected
// 任何非终止状态可进入 Error。
type SessionState int

const (
	// StateConnecting 正在连接（已分配节点，等待客户端接入）
	StateConnecting SessionState = iota
	// StateConnected 已连接（传输通道建立，尚未激活流）
	StateConnected
	// StateActive 活跃（有流在传输）
	StateActive
	// StateIdle 空闲（无活动流，等待唤醒或清理）
	StateIdle
	// StateDisconnecting 正在断开
	StateDisconnecting
	// StateDisconnected 已断开（终止状态）
	StateDisconnected
	// StateError 错误（终止状态）
	StateError
)

// String 返回会话状态的字符串表示
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsLive 检查是否为存活状态
//
// 只有 Active 和 Idle 计入清理和指标的"存活"会话。
func (s SessionState) IsLive() bool {
	return s == StateActive || s == StateIdle
}

// IsTerminal 检查是否为终止状态
func (s SessionState) IsTerminal() bool {
	return s == StateDisconnected || s == StateError
}

// CanTransitionTo 检查状态迁移是否合法
func (s SessionState) CanTransitionTo(next SessionState) bool {
	// 任何非终止状态可进入 Error
	if next == StateError {
		return !s.IsTerminal()
	}

	switch s {
	case StateConnecting:
		return next == StateConnected || next == StateActive || next == StateDisconnecting
	case StateConnected:
		return next == StateActive || next == StateDisconnecting
	case StateActive:
		return next == StateIdle || next == StateDisconnecting
	case StateIdle:
		return next == StateActive || next == StateDisconnecting
	case StateDisconnecting:
		return next == StateDisconnected
	default:
		return false
	}
}

// ============================================================================
//                              Algorithm - 负载均衡算法
// ============================================================================

// Algorithm 负载均衡算法
type Algorithm int

const (
	// AlgoRoundRobin 轮询
	AlgoRoundRobin Algorithm = iota
	// AlgoWeightedRoundRobin 加权轮询（权重 = 剩余容量 × 优先级）
	AlgoWeightedRoundRobin
	// AlgoLeastConnections 最少连接
	AlgoLeastConnections
	// AlgoWeightedLeastConnections 加权最少连接
	AlgoWeightedLeastConnections
	// AlgoGeographic 地理最近（需要客户端坐标）
	AlgoGeographic
	// AlgoPerformance 性能优先（延迟 + 负载比）
	AlgoPerformance
	// AlgoAdaptive 自适应（延迟、负载、距离、带宽、优先级的线性组合）
	AlgoAdaptive
)

// String 返回算法的字符串表示
func (a Algorithm) String() string {
	switch a {
	case AlgoRoundRobin:
		return "round_robin"
	case AlgoWeightedRoundRobin:
		return "weighted_round_robin"
	case AlgoLeastConnections:
		return "least_connections"
	case AlgoWeightedLeastConnections:
		return "weighted_least_connections"
	case AlgoGeographic:
		return "geographic"
	case AlgoPerformance:
		return "performance"
	case AlgoAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// ParseAlgorithm 解析算法名称
func ParseAlgorithm(s string) (Algorithm, bool) {
	switch s {
	case "round_robin":
		return AlgoRoundRobin, true
	case "weighted_round_robin":
		return AlgoWeightedRoundRobin, true
	case "least_connections":
		return AlgoLeastConnections, true
	case "weighted_least_connections":
		return AlgoWeightedLeastConnections, true
	case "geographic":
		return AlgoGeographic, true
	case "performance":
		return AlgoPerformance, true
	case "adaptive":
		return AlgoAdaptive, true
	default:
		return AlgoRoundRobin, false
	}
}

// ============================================================================
//                              KeyState - 会话密钥状态
// ============================================================================

// KeyState 会话密钥生命周期状态
//
// 状态机：Pending → Active → Expired → Purged
// 加解密操作只在 Active 状态下允许。
type KeyState int

const (
	// KeyPending 密钥材料尚未安装完成
	KeyPending KeyState = iota
	// KeyActive 可用于加解密
	KeyActive
	// KeyExpired 已过期（保留元数据，拒绝操作）
	KeyExpired
	// KeyPurged 密钥材料已擦除
	KeyPurged
)

// String 返回密钥状态的字符串表示
func (k KeyState) String() string {
	switch k {
	case KeyPending:
		return "pending"
	case KeyActive:
		return "active"
	case KeyExpired:
		return "expired"
	case KeyPurged:
		return "purged"
	default:
		return "unknown"
	}
}

// CanEncrypt 检查该状态下是否允许加解密
func (k KeyState) CanEncrypt() bool {
	return k == KeyActive
}

// ============================================================================
//                              TransferStatus - 传输状态
// ============================================================================

// TransferStatus 文件传输状态
type TransferStatus int

const (
	// TransferPending 等待开始
	TransferPending TransferStatus = iota
	// TransferInProgress 进行中
	TransferInProgress
	// TransferPaused 已暂停
	TransferPaused
	// TransferCompleted 已完成（终止状态）
	TransferCompleted
	// TransferFailed 已失败（终止状态）
	TransferFailed
	// TransferCancelled 已取消（终止状态）
	TransferCancelled
)

// String 返回传输状态的字符串表示
func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferInProgress:
		return "in_progress"
	case TransferPaused:
		return "paused"
	case TransferCompleted:
		return "completed"
	case TransferFailed:
		return "failed"
	case TransferCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal 检查是否为终止状态
func (s TransferStatus) IsTerminal() bool {
	return s == TransferCompleted || s == TransferFailed || s == TransferCancelled
}

// CanTransitionTo 检查传输状态迁移是否合法
//
// pause 只允许从 InProgress 发起；cancel 可以从任何存活状态发起。
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch next {
	case TransferInProgress:
		return s == TransferPending || s == TransferPaused
	case TransferPaused:
		return s == TransferInProgress
	case TransferCompleted, TransferFailed:
		return s == TransferInProgress
	case TransferCancelled:
		return true
	default:
		return false
	}
}

// ============================================================================
//                              TransferDirection - 传输方向
// ============================================================================

// TransferDirection 文件传输方向
type TransferDirection int

const (
	// DirectionSend 发送
	DirectionSend TransferDirection = iota
	// DirectionReceive 接收
	DirectionReceive
)

// String 返回传输方向的字符串表示
func (d TransferDirection) String() string {
	if d == DirectionReceive {
		return "receive"
	}
	return "send"
}

// ============================================================================
//                              AdjustmentReason - 带宽调整原因
// ============================================================================

// AdjustmentReason 带宽调整原因
type AdjustmentReason int

const (
	// ReasonCongestion 拥塞控制
	ReasonCongestion AdjustmentReason = iota
	// ReasonUnderutilization 利用率过低，扩容
	ReasonUnderutilization
	// ReasonPriorityPreemption 高优先级抢占
	ReasonPriorityPreemption
	// ReasonQoS QoS 策略调整
	ReasonQoS
	// ReasonAdaptiveOptimization 自适应优化
	ReasonAdaptiveOptimization
	// ReasonPolicyEnforcement 策略强制执行
	ReasonPolicyEnforcement
)

// String 返回调整原因的字符串表示
func (r AdjustmentReason) String() string {
	switch r {
	case ReasonCongestion:
		return "congestion"
	case ReasonUnderutilization:
		return "underutilization"
	case ReasonPriorityPreemption:
		return "priority_preemption"
	case ReasonQoS:
		return "qos"
	case ReasonAdaptiveOptimization:
		return "adaptive_optimization"
	case ReasonPolicyEnforcement:
		return "policy_enforcement"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              StreamKind - 媒体流类别
// ============================================================================

// StreamKind 会话内的媒体流类别
type StreamKind int

const (
	// StreamScreen 屏幕画面流
	StreamScreen StreamKind = iota
	// StreamAudio 音频流
	StreamAudio
	// StreamFile 文件传输流
	StreamFile
)

// StreamKinds 全部媒体流类别
var StreamKinds = []StreamKind{StreamScreen, StreamAudio, StreamFile}

// String 返回媒体流类别的字符串表示
func (k StreamKind) String() string {
	switch k {
	case StreamScreen:
		return "screen"
	case StreamAudio:
		return "audio"
	case StreamFile:
		return "file"
	default:
		return "unknown"
	}
}
