package engine

import (
	"os"
	"path/filepath"
	"time"
)

// Config 存储引擎配置
//
// 测试代码应使用 t.TempDir() 创建临时目录。
type Config struct {
	// Path 数据目录路径（必需）
	Path string

	// SyncWrites 每次写入都同步到磁盘
	SyncWrites bool

	// ReadOnly 只读模式
	ReadOnly bool

	// Logger 引擎内部日志，nil 表示禁用
	Logger Logger

	// MemTableSize 内存表大小（字节）
	MemTableSize int64

	// ValueLogFileSize 值日志文件大小（字节）
	ValueLogFileSize int64

	// ValueThreshold 大于此值的负载写入值日志
	ValueThreshold int64

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64

	// ZSTDCompressionLevel ZSTD 压缩级别，0 表示禁用
	ZSTDCompressionLevel int

	// GCInterval 值日志 GC 间隔，0 表示不启动 GC
	GCInterval time.Duration

	// GCDiscardRatio 值日志 GC 丢弃比例
	GCDiscardRatio float64
}

// Logger 引擎日志接口，与 badger.Logger 签名一致
type Logger interface {
	Errorf(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// DefaultConfig 返回默认配置
//
// DHT 值负载较小（单个 UDP 数据报以内），内存表与缓存都按小规模设置。
func DefaultConfig(path string) *Config {
	return &Config{
		Path:                 path,
		MemTableSize:         16 << 20,
		ValueLogFileSize:     64 << 20,
		ValueThreshold:       1 << 10,
		BlockCacheSize:       32 << 20,
		ZSTDCompressionLevel: 1,
		GCInterval:           10 * time.Minute,
		GCDiscardRatio:       0.5,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Path == "" {
		return ErrInvalidConfig
	}
	if c.MemTableSize < 1<<20 {
		return ErrInvalidConfig
	}
	if c.ValueLogFileSize < 1<<20 {
		return ErrInvalidConfig
	}
	if c.GCInterval > 0 && (c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1) {
		return ErrInvalidConfig
	}
	return nil
}

// EnsureDir 确保数据目录存在，并将 Path 规范化为绝对路径
func (c *Config) EnsureDir() error {
	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return err
	}
	c.Path = absPath
	return os.MkdirAll(c.Path, 0o755)
}
