package config

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultFallbackPeer 注册中心不可用时使用的兜底引导节点
const DefaultFallbackPeer = "127.0.0.1:8810"

// BootstrapConfig 引导配置
type BootstrapConfig struct {
	// RegistryURL 注册中心地址，为空时只使用 Peers 与 FallbackPeer
	RegistryURL string `json:"registry_url"`

	// Peers 静态引导节点（host:port）
	Peers []string `json:"peers,omitempty"`

	// FallbackPeer 无可用引导节点时尝试的节点
	FallbackPeer string `json:"fallback_peer"`

	// Register 入网成功后向注册中心登记本节点
	Register bool `json:"register"`

	// MaxAttempts 注册中心请求最大尝试次数
	MaxAttempts int `json:"max_attempts"`

	// RequestTimeout 单次注册中心请求超时
	RequestTimeout Duration `json:"request_timeout"`
}

// DefaultBootstrapConfig 返回默认引导配置
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		RegistryURL:    "",
		FallbackPeer:   DefaultFallbackPeer,
		Register:       true,
		MaxAttempts:    3,
		RequestTimeout: Duration(5 * time.Second),
	}
}

// Validate 验证引导配置
func (c BootstrapConfig) Validate() error {
	if c.RegistryURL != "" {
		u, err := url.Parse(c.RegistryURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("bootstrap: invalid registry_url %q", c.RegistryURL)
		}
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("bootstrap: max_attempts must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("bootstrap: request_timeout must be positive")
	}
	return nil
}
