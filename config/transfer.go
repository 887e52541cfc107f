package config

// TransferConfig 文件传输配置
type TransferConfig struct {
	// ChunkSize 分块大小（字节）
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// MaxFileSize 单文件大小上限（字节）
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// DownloadDir 接收文件的落盘目录
	DownloadDir string `json:"download_dir" yaml:"download_dir"`

	// Compression 是否启用分块压缩
	Compression bool `json:"compression" yaml:"compression"`
}

// DefaultTransferConfig 返回默认传输配置
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		ChunkSize:   64 * 1024,
		MaxFileSize: 4 << 30, // 4 GiB
		DownloadDir: "downloads",
		Compression: true,
	}
}
