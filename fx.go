package kad

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/core/identity"
	"github.com/dep2p/go-kad/internal/core/metrics"
	"github.com/dep2p/go-kad/internal/core/storage"
	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dep2p/go-kad/internal/core/transport/udp"
	"github.com/dep2p/go-kad/internal/dht"
	"github.com/dep2p/go-kad/internal/dht/store"
	"github.com/dep2p/go-kad/internal/discovery/registry"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置注入
//  2. Core: Metrics（启用时）→ Identity → Storage → UDP Transport
//  3. DHT 引擎（依赖以上全部）
//  4. 注册中心客户端（配置了 RegistryURL 时）
//  5. 用户自定义 Fx 选项
func buildFxApp(opts *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := opts.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(opts.config),
	}
	if opts.clock != nil {
		clk := opts.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	if opts.config.Metrics.Enabled {
		modules = append(modules, metrics.Module())
	}
	modules = append(modules,
		identity.Module(),
		storage.Module(),
		udp.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3. DHT 引擎
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, dht.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 4. 注册中心（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if opts.config.Bootstrap.RegistryURL != "" {
		modules = append(modules, fx.Provide(provideRegistryClient))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 用户自定义选项与组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, opts.userFxOptions...)
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}

// provideRegistryClient 按引导配置创建注册中心客户端
func provideRegistryClient(cfg *config.Config) (*registry.Client, error) {
	return registry.NewClient(registry.ClientConfig{
		URL:         cfg.Bootstrap.RegistryURL,
		Timeout:     cfg.Bootstrap.RequestTimeout.Duration(),
		MaxAttempts: cfg.Bootstrap.MaxAttempts,
	})
}

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Engine    *dht.Engine
	Store     *store.Store
	Transport *udp.Transport
	Identity  identity.Provider
	Storage   engine.Engine

	Registry *registry.Client `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
//
// 显式设置的引导来源与登记目标优先于注册中心客户端。
func injectNodeComponents(node *Node) interface{} {
	return func(params nodeInjectParams) {
		node.engine = params.Engine
		node.store = params.Store
		node.transport = params.Transport
		node.identity = params.Identity
		node.storage = params.Storage
		node.metrics = params.Metrics

		if params.Registry != nil {
			if node.source == nil {
				node.source = params.Registry
			}
			if node.sink == nil {
				node.sink = params.Registry
			}
		}
	}
}
