// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存。
//
//	cfg := config.NewConfig()
//	cfg.Node.Port = 8810
//
//	cfg, err := config.LoadFile("kad.json")
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config 是 go-kad 节点的完整配置
//
//   - Node: 节点身份、监听端口、入站限速
//   - DHT: Kademlia 参数与后台循环间隔
//   - Storage: 本地值存储目录
//   - Bootstrap: 注册中心与兜底引导节点
//   - Log: 日志级别与格式
//   - Metrics: Prometheus 指标
type Config struct {
	// Node 节点配置
	Node NodeConfig `json:"node"`

	// DHT Kademlia 配置
	DHT DHTConfig `json:"dht"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Bootstrap 引导配置
	Bootstrap BootstrapConfig `json:"bootstrap"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Node:      DefaultNodeConfig(),
		DHT:       DefaultDHTConfig(),
		Storage:   DefaultStorageConfig(),
		Bootstrap: DefaultBootstrapConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if err := c.DHT.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Bootstrap.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// SaveFile 将配置写入 JSON 文件
func (c *Config) SaveFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
