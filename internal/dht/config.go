package dht

import (
	"fmt"
	"time"

	"github.com/dep2p/go-kad/config"
)

// Config DHT 引擎配置
type Config struct {
	// BucketSize K 桶容量，也是查找结果数 k
	BucketSize int

	// Alpha 每轮查找并发度
	Alpha int

	// RPCTimeout 同步 RPC 最长等待时间
	RPCTimeout time.Duration

	// PollInterval 响应缓存轮询间隔
	PollInterval time.Duration

	// CacheMaxAge 挂起请求记录最长保留时间
	CacheMaxAge time.Duration

	// CacheSweepInterval 挂起请求清理间隔
	CacheSweepInterval time.Duration

	// CacheCapacity 每个挂起请求缓存的容量上限
	CacheCapacity int

	// MaintenanceInterval 维护循环间隔
	MaintenanceInterval time.Duration

	// ReplicateInterval 值复制间隔
	ReplicateInterval time.Duration

	// RefreshThreshold 桶超过此时间未访问即刷新
	RefreshThreshold time.Duration

	// ValueTTL 值存活时间
	ValueTTL time.Duration

	// MaxClockSkew 允许的发布时间超前量
	MaxClockSkew time.Duration

	// ContactQueueSize 联系人观察队列长度
	ContactQueueSize int

	// MaxValueSize 接受存储的最大值大小（字节）
	MaxValueSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BucketSize:          20,
		Alpha:               3,
		RPCTimeout:          500 * time.Millisecond,
		PollInterval:        2 * time.Millisecond,
		CacheMaxAge:         30 * time.Second,
		CacheSweepInterval:  time.Second,
		CacheCapacity:       4096,
		MaintenanceInterval: time.Minute,
		ReplicateInterval:   time.Hour,
		RefreshThreshold:    time.Hour,
		ValueTTL:            24 * time.Hour,
		MaxClockSkew:        time.Hour,
		ContactQueueSize:    10,
		MaxValueSize:        60 << 10,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch {
	case c.BucketSize <= 0:
		return fmt.Errorf("%w: bucket size must be positive", ErrInvalidConfig)
	case c.Alpha <= 0:
		return fmt.Errorf("%w: alpha must be positive", ErrInvalidConfig)
	case c.RPCTimeout <= 0 || c.PollInterval <= 0:
		return fmt.Errorf("%w: rpc timeout and poll interval must be positive", ErrInvalidConfig)
	case c.PollInterval > c.RPCTimeout:
		return fmt.Errorf("%w: poll interval exceeds rpc timeout", ErrInvalidConfig)
	case c.CacheMaxAge <= 0 || c.CacheSweepInterval <= 0:
		return fmt.Errorf("%w: cache intervals must be positive", ErrInvalidConfig)
	case c.CacheCapacity <= 0:
		return fmt.Errorf("%w: cache capacity must be positive", ErrInvalidConfig)
	case c.MaintenanceInterval <= 0 || c.ReplicateInterval <= 0 || c.RefreshThreshold <= 0:
		return fmt.Errorf("%w: maintenance intervals must be positive", ErrInvalidConfig)
	case c.ValueTTL <= 0:
		return fmt.Errorf("%w: value TTL must be positive", ErrInvalidConfig)
	case c.MaxClockSkew < 0:
		return fmt.Errorf("%w: clock skew cannot be negative", ErrInvalidConfig)
	case c.ContactQueueSize <= 0:
		return fmt.Errorf("%w: contact queue size must be positive", ErrInvalidConfig)
	case c.MaxValueSize <= 0:
		return fmt.Errorf("%w: max value size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ConfigOption 配置选项函数
type ConfigOption func(*Config)

// WithBucketSize 设置 K 桶容量
func WithBucketSize(k int) ConfigOption {
	return func(c *Config) { c.BucketSize = k }
}

// WithAlpha 设置查找并发度
func WithAlpha(alpha int) ConfigOption {
	return func(c *Config) { c.Alpha = alpha }
}

// WithRPCTimeout 设置同步 RPC 等待时间
func WithRPCTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.RPCTimeout = d }
}

// WithMaintenanceInterval 设置维护循环间隔
func WithMaintenanceInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.MaintenanceInterval = d }
}

// WithReplicateInterval 设置值复制间隔
func WithReplicateInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.ReplicateInterval = d }
}

// WithValueTTL 设置值存活时间
func WithValueTTL(d time.Duration) ConfigOption {
	return func(c *Config) { c.ValueTTL = d }
}

// WithMaxClockSkew 设置允许的发布时间超前量
func WithMaxClockSkew(d time.Duration) ConfigOption {
	return func(c *Config) { c.MaxClockSkew = d }
}

// Apply 应用选项
func (c *Config) Apply(opts ...ConfigOption) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigFromUnified 从统一配置创建 DHT 配置
func ConfigFromUnified(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	d := cfg.DHT
	c.BucketSize = d.BucketSize
	c.Alpha = d.Alpha
	c.RPCTimeout = d.RPCTimeout.Duration()
	c.PollInterval = d.PollInterval.Duration()
	c.CacheMaxAge = d.CacheMaxAge.Duration()
	c.CacheSweepInterval = d.CacheSweepInterval.Duration()
	c.MaintenanceInterval = d.MaintenanceInterval.Duration()
	c.ReplicateInterval = d.ReplicateInterval.Duration()
	c.RefreshThreshold = d.RefreshThreshold.Duration()
	c.ValueTTL = d.ValueTTL.Duration()
	c.MaxClockSkew = d.MaxClockSkew.Duration()
	c.ContactQueueSize = d.ContactQueueSize
	c.MaxValueSize = d.MaxValueSize
	return c
}
