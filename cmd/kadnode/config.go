package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-kad/config"
)

// ============================================================================
//                              环境变量覆盖（CLI 专用）
// ============================================================================

// 环境变量名
const (
	envPort           = "KAD_PORT"
	envRegistryURL    = "KAD_REGISTRY_URL"
	envBootstrapPeers = "KAD_BOOTSTRAP_PEERS"
	envDataDir        = "KAD_DATA_DIR"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
//   - KAD_PORT: 监听端口
//   - KAD_REGISTRY_URL: 注册中心地址
//   - KAD_BOOTSTRAP_PEERS: 引导节点（逗号分隔）
//   - KAD_DATA_DIR: 数据目录
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Node.Port = p
		} else {
			logger.Warn("忽略无效的环境变量", "name", envPort, "value", v)
		}
	}

	if v := os.Getenv(envRegistryURL); v != "" {
		cfg.Bootstrap.RegistryURL = v
	}

	if v := os.Getenv(envBootstrapPeers); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Bootstrap.Peers = append(cfg.Bootstrap.Peers, p)
			}
		}
	}

	if v := os.Getenv(envDataDir); v != "" {
		cfg.Storage.DataDir = v
	}
}
