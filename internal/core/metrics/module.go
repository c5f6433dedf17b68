package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Config 指标模块配置
type Config struct {
	// Addr HTTP 监听地址，为空时不监听
	Addr string
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{Addr: cfg.Metrics.Addr}
}

// Params 指标模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result 指标模块提供的结果
type Result struct {
	fx.Out

	Metrics *Metrics
	Server  *Server
}

// Module 返回指标 Fx 模块
//
// 提供 *Metrics；配置了监听地址时在 OnStart 启动 /metrics HTTP 服务。
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideMetrics 创建指标集合与 HTTP 服务
func ProvideMetrics(p Params) Result {
	m := New()
	return Result{
		Metrics: m,
		Server:  NewServer(ConfigFromUnified(p.UnifiedCfg).Addr, m),
	}
}

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

// ============================================================================
//                              HTTP 服务
// ============================================================================

// Server /metrics HTTP 服务
type Server struct {
	addr string
	srv  *http.Server
	ln   net.Listener
}

// NewServer 创建服务，addr 为空时 Start 无操作
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		addr: addr,
		srv:  &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Start 开始监听
func (s *Server) Start() error {
	if s.addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务异常退出", "error", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", ln.Addr().String())
	return nil
}

// Addr 返回实际监听地址，未监听时返回空字符串
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop 关闭服务
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
