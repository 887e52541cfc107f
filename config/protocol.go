package config

// ProtocolConfig 控制协议配置
type ProtocolConfig struct {
	// ListenAddr TCP 控制端口监听地址
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`

	// WebSocketAddr WebSocket 控制端口监听地址（空表示禁用）
	WebSocketAddr string `json:"websocket_addr" yaml:"websocket_addr"`

	// MaxFrameBytes 单帧大小上限（字节）
	MaxFrameBytes int `json:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// DefaultProtocolConfig 返回默认控制协议配置
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		ListenAddr:    ":7480",
		WebSocketAddr: "",
		MaxFrameBytes: 1 << 20,
	}
}
