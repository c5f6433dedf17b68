// Package main 提供 kadnode 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	kad "github.com/dep2p/go-kad"
	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/discovery/registry"
	"github.com/dep2p/go-kad/pkg/lib/log"
)

var logger = log.Logger("kad/cmd")

// masterPort 主节点固定端口，与注册中心的默认种子一致
const masterPort = 8810

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 命令行参数：运行时覆盖（「这次运行」想怎么跑）
// JSON 配置文件：持久化配置（「这个节点」的固定配置）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	port       = flag.Int("port", 0, "UDP 监听端口（0 = 随机端口）")
	configFile = flag.String("config", "", "配置文件路径")
	dataDir    = flag.String("data-dir", "", "数据目录（默认: ./data/<port> 或临时目录）")
	registryTo = flag.String("registry", registry.DefaultURL, "注册中心地址（空 = 不使用）")
	identity   = flag.String("identity", "", "身份模式 (random/host)")
	metricsOn  = flag.String("metrics", "", "Prometheus 指标监听地址（如 localhost:9100）")

	master = flag.Bool("master", false, "主节点模式：固定端口 8810、随机 ID、不使用注册中心")
	seed   = flag.Bool("seed", false, "入网后写入一个随机键值")
	debug  = flag.Bool("debug", false, "开启调试日志")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(kad.VersionInfo())
		return nil
	}
	if *debug {
		log.EnableDebug()
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	cleanup, err := prepareDataDir(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("启动 kad 节点", "version", kad.Version, "commit", kad.GitCommit, "master", *master)

	node, err := kad.New(ctx, kad.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	if *seed {
		seedValue(ctx, node)
	}

	printNodeInfo(node)

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	waitForSignal()

	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildConfig 构建节点配置
//
// 优先级（从高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值。
// 主节点模式覆盖端口、身份与引导设置。
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if isFlagSet("port") {
		cfg.Node.Port = *port
	}
	if isFlagSet("identity") {
		cfg.Node.Identity = *identity
	}
	if isFlagSet("data-dir") {
		cfg.Storage.DataDir = *dataDir
	}
	if *metricsOn != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsOn
	}
	if isFlagSet("registry") || (*configFile == "" && cfg.Bootstrap.RegistryURL == "") {
		cfg.Bootstrap.RegistryURL = *registryTo
	}

	if *master {
		cfg.Node.Port = masterPort
		if p, ok := masterPortArg(); ok {
			cfg.Node.Port = p
		}
		cfg.Node.Identity = config.IdentityRandom
		cfg.Bootstrap.RegistryURL = ""
		cfg.Bootstrap.Peers = nil
		cfg.Bootstrap.FallbackPeer = ""
		cfg.Bootstrap.Register = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// masterPortArg 主节点模式下第一个位置参数可指定端口
func masterPortArg() (int, bool) {
	if flag.NArg() == 0 {
		return 0, false
	}
	p, err := strconv.Atoi(flag.Arg(0))
	if err != nil || p <= 0 || p > 65535 {
		logger.Warn("忽略无效的端口参数", "arg", flag.Arg(0))
		return 0, false
	}
	return p, true
}

// prepareDataDir 未显式指定数据目录时按端口分目录，随机端口使用临时目录
func prepareDataDir(cfg *config.Config) (func(), error) {
	if isFlagSet("data-dir") || *configFile != "" || os.Getenv(envDataDir) != "" {
		return func() {}, nil
	}
	if cfg.Node.Port > 0 {
		cfg.Storage.DataDir = filepath.Join("data", strconv.Itoa(cfg.Node.Port))
		return func() {}, nil
	}
	dir, err := os.MkdirTemp("", "kadnode-*")
	if err != nil {
		return nil, fmt.Errorf("创建临时数据目录失败: %w", err)
	}
	cfg.Storage.DataDir = dir
	return func() { _ = os.RemoveAll(dir) }, nil
}

// seedValue 写入一个随机键值
func seedValue(ctx context.Context, node *kad.Node) {
	key := uuid.NewString()
	value := uuid.New()
	if err := node.Put(ctx, key, value[:]); err != nil {
		logger.Warn("写入种子值失败", "key", key, "error", err)
		return
	}
	fmt.Printf("已写入种子值: %s = %s\n", key, value.String())
}

// printNodeInfo 显示节点信息
func printNodeInfo(node *kad.Node) {
	stats := node.Stats()
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║  go-kad node %-58s║\n", kad.Version)
	fmt.Println("╠════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Node ID:  %-60s║\n", node.ID().String())
	fmt.Printf("║  Port:     %-60d║\n", node.Port())
	fmt.Printf("║  Joined:   %-60t║\n", node.Joined())
	fmt.Printf("║  Contacts: %-60d║\n", stats.Contacts)
	fmt.Println("╚════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
