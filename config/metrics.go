package config

import (
	"fmt"
	"net"
)

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// Enabled 启用指标收集
	Enabled bool `json:"enabled"`

	// Addr 指标 HTTP 监听地址（如 "localhost:9100"），为空时只收集不监听
	Addr string `json:"addr"`
}

// DefaultMetricsConfig 返回默认指标配置（禁用）
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("metrics: invalid addr %q: %v", c.Addr, err)
	}
	return nil
}
