package config

import "fmt"

// 身份模式
const (
	// IdentityRandom 每次启动生成随机 ID
	IdentityRandom = "random"

	// IdentityHost 由主机、用户与可执行文件派生确定性 ID，
	// 同一主机上已有进程持有时回退为随机 ID
	IdentityHost = "host"
)

// NodeConfig 节点配置
type NodeConfig struct {
	// Port UDP 监听端口，0 表示由系统分配
	Port int `json:"port"`

	// Identity 身份模式：random / host
	Identity string `json:"identity"`

	// InboundRate 每个来源地址每秒允许的入站数据报数，0 表示不限速
	InboundRate float64 `json:"inbound_rate"`

	// InboundBurst 入站突发上限
	InboundBurst int `json:"inbound_burst"`
}

// DefaultNodeConfig 返回默认节点配置
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Port:         0,
		Identity:     IdentityRandom,
		InboundRate:  500,
		InboundBurst: 1000,
	}
}

// Validate 验证节点配置
func (c NodeConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("node: port %d out of range", c.Port)
	}
	switch c.Identity {
	case IdentityRandom, IdentityHost:
	default:
		return fmt.Errorf("node: unknown identity mode %q", c.Identity)
	}
	if c.InboundRate < 0 {
		return fmt.Errorf("node: inbound_rate cannot be negative")
	}
	if c.InboundRate > 0 && c.InboundBurst <= 0 {
		return fmt.Errorf("node: inbound_burst must be positive when rate limiting is enabled")
	}
	return nil
}
