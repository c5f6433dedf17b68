package kad

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/discovery/registry"
	"github.com/dep2p/go-kad/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	// 引导来源与登记目标，覆盖由 RegistryURL 创建的注册中心客户端
	source registry.BootstrapSource
	sink   registry.RegistrationSink

	clock clock.Clock

	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置替换默认配置
//
// 应放在其他选项之前，否则会覆盖先前选项的修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		o.config = cfg
		return nil
	}
}

// WithPort 设置 UDP 监听端口，0 表示由系统分配
func WithPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: port %d", ErrInvalidOption, port)
		}
		o.config.Node.Port = port
		return nil
	}
}

// WithIdentity 设置身份模式（config.IdentityRandom / config.IdentityHost）
func WithIdentity(mode string) Option {
	return func(o *options) error {
		o.config.Node.Identity = mode
		return nil
	}
}

// WithDataDir 设置本地存储目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.config.Storage.DataDir = dir
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              引导选项
// ════════════════════════════════════════════════════════════════════════════

// WithRegistry 设置注册中心地址
func WithRegistry(url string) Option {
	return func(o *options) error {
		o.config.Bootstrap.RegistryURL = url
		return nil
	}
}

// WithoutRegister 入网后不向注册中心登记
func WithoutRegister() Option {
	return func(o *options) error {
		o.config.Bootstrap.Register = false
		return nil
	}
}

// WithBootstrapPeers 追加静态引导节点（host:port）
func WithBootstrapPeers(peers ...string) Option {
	return func(o *options) error {
		for _, p := range peers {
			if _, err := types.ParseHostPort(p); err != nil {
				return fmt.Errorf("%w: bootstrap peer %q: %v", ErrInvalidOption, p, err)
			}
		}
		o.config.Bootstrap.Peers = append(o.config.Bootstrap.Peers, peers...)
		return nil
	}
}

// WithFallbackPeer 设置兜底引导节点，空字符串表示不使用
func WithFallbackPeer(addr string) Option {
	return func(o *options) error {
		o.config.Bootstrap.FallbackPeer = addr
		return nil
	}
}

// WithMetrics 启用 Prometheus 指标，addr 非空时在该地址提供 /metrics
func WithMetrics(addr string) Option {
	return func(o *options) error {
		o.config.Metrics.Enabled = true
		o.config.Metrics.Addr = addr
		return nil
	}
}

// WithBootstrapSource 使用自定义引导来源
func WithBootstrapSource(src registry.BootstrapSource) Option {
	return func(o *options) error {
		o.source = src
		return nil
	}
}

// WithRegistrationSink 使用自定义登记目标
func WithRegistrationSink(sink registry.RegistrationSink) Option {
	return func(o *options) error {
		o.sink = sink
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              高级选项
// ════════════════════════════════════════════════════════════════════════════

// WithClock 注入时钟，用于测试
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
