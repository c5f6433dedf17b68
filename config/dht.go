package config

import (
	"errors"
	"time"
)

// DHTConfig Kademlia 配置
//
// 默认值即经典 Kademlia 参数：k=20、α=3、值 TTL 24 小时、
// 复制与刷新间隔 1 小时。
type DHTConfig struct {
	// BucketSize K 桶容量（k）
	BucketSize int `json:"bucket_size"`

	// Alpha 每轮查询并发度（α）
	Alpha int `json:"alpha"`

	// RPCTimeout 同步 RPC 最长等待时间
	RPCTimeout Duration `json:"rpc_timeout"`

	// PollInterval 响应缓存轮询间隔
	PollInterval Duration `json:"poll_interval"`

	// CacheMaxAge 挂起请求记录的最长保留时间
	CacheMaxAge Duration `json:"cache_max_age"`

	// CacheSweepInterval 挂起请求清理间隔
	CacheSweepInterval Duration `json:"cache_sweep_interval"`

	// MaintenanceInterval 维护循环间隔
	MaintenanceInterval Duration `json:"maintenance_interval"`

	// ReplicateInterval 值复制间隔
	ReplicateInterval Duration `json:"replicate_interval"`

	// RefreshThreshold 桶超过此时间未访问即刷新
	RefreshThreshold Duration `json:"refresh_threshold"`

	// ValueTTL 值的存活时间
	ValueTTL Duration `json:"value_ttl"`

	// MaxClockSkew 允许的发布时间超前量
	MaxClockSkew Duration `json:"max_clock_skew"`

	// ContactQueueSize 待处理联系人观察队列长度
	ContactQueueSize int `json:"contact_queue_size"`

	// MaxValueSize 接受存储的最大值大小（字节）
	MaxValueSize int `json:"max_value_size"`
}

// DefaultDHTConfig 返回默认 DHT 配置
func DefaultDHTConfig() DHTConfig {
	return DHTConfig{
		BucketSize:          20,
		Alpha:               3,
		RPCTimeout:          Duration(500 * time.Millisecond),
		PollInterval:        Duration(2 * time.Millisecond),
		CacheMaxAge:         Duration(30 * time.Second),
		CacheSweepInterval:  Duration(time.Second),
		MaintenanceInterval: Duration(time.Minute),
		ReplicateInterval:   Duration(time.Hour),
		RefreshThreshold:    Duration(time.Hour),
		ValueTTL:            Duration(24 * time.Hour),
		MaxClockSkew:        Duration(time.Hour),
		ContactQueueSize:    10,
		MaxValueSize:        60 << 10,
	}
}

// Validate 验证 DHT 配置
func (c DHTConfig) Validate() error {
	if c.BucketSize <= 0 {
		return errors.New("dht: bucket_size must be positive")
	}
	if c.Alpha <= 0 {
		return errors.New("dht: alpha must be positive")
	}
	if c.RPCTimeout <= 0 || c.PollInterval <= 0 {
		return errors.New("dht: rpc_timeout and poll_interval must be positive")
	}
	if c.PollInterval > c.RPCTimeout {
		return errors.New("dht: poll_interval cannot exceed rpc_timeout")
	}
	if c.CacheMaxAge <= 0 || c.CacheSweepInterval <= 0 {
		return errors.New("dht: cache intervals must be positive")
	}
	if c.MaintenanceInterval <= 0 || c.ReplicateInterval <= 0 || c.RefreshThreshold <= 0 {
		return errors.New("dht: maintenance intervals must be positive")
	}
	if c.ValueTTL <= 0 {
		return errors.New("dht: value_ttl must be positive")
	}
	if c.MaxClockSkew < 0 {
		return errors.New("dht: max_clock_skew cannot be negative")
	}
	if c.ContactQueueSize <= 0 {
		return errors.New("dht: contact_queue_size must be positive")
	}
	if c.MaxValueSize <= 0 {
		return errors.New("dht: max_value_size must be positive")
	}
	return nil
}
