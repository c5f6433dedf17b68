package udp

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/core/metrics"
	"github.com/dep2p/go-kad/internal/core/transport"
)

// ConfigFromUnified 从统一配置创建 UDP 配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		Port:         cfg.Node.Port,
		InboundRate:  cfg.Node.InboundRate,
		InboundBurst: cfg.Node.InboundBurst,
	}
}

// Params UDP 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config   `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

// Result UDP 模块提供的结果
type Result struct {
	fx.Out

	Transport *Transport
	Conn      transport.Conn
}

// Module 返回 UDP 传输 Fx 模块
//
// 套接字在构造时绑定，由使用它的引擎在停止时关闭。
func Module() fx.Option {
	return fx.Module("transport/udp",
		fx.Provide(ProvideTransport),
	)
}

// ProvideTransport 绑定 UDP 套接字
func ProvideTransport(p Params) (Result, error) {
	t, err := Listen(ConfigFromUnified(p.UnifiedCfg))
	if err != nil {
		return Result{}, err
	}
	err = p.Metrics.CounterFunc("udp_dropped_datagrams_total", "Inbound datagrams dropped by the per-source rate limiter.",
		func() float64 { return float64(t.Dropped()) })
	if err != nil {
		_ = t.Close()
		return Result{}, err
	}
	return Result{Transport: t, Conn: t}, nil
}
