package dht

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/core/identity"
	"github.com/dep2p/go-kad/internal/core/metrics"
	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dep2p/go-kad/internal/core/storage/kv"
	"github.com/dep2p/go-kad/internal/core/transport"
	"github.com/dep2p/go-kad/internal/dht/store"
)

// StorePrefix 值存储在存储引擎中的键前缀
var StorePrefix = []byte("d/")

// Params DHT 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Storage    engine.Engine
	Conn       transport.Conn
	Identity   identity.Provider
	Clock      clock.Clock      `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

// Result DHT 模块提供的结果
type Result struct {
	fx.Out

	Engine *Engine
	Store  *store.Store
}

// Module 返回 DHT Fx 模块
//
// OnStart 启动索引自动保存与引擎循环；OnStop 先停引擎，再保存并关闭值存储。
func Module() fx.Option {
	return fx.Module("dht",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideEngine 打开值存储并创建引擎
func ProvideEngine(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)

	saveInterval := store.DefaultSaveInterval
	if p.UnifiedCfg != nil {
		saveInterval = p.UnifiedCfg.Storage.IndexSaveInterval.Duration()
	}

	st, err := store.Open(kv.New(p.Storage, StorePrefix), store.Options{
		Clock:        p.Clock,
		SaveInterval: saveInterval,
	})
	if err != nil {
		return Result{}, NewError("open", err, "local store")
	}

	e, err := New(cfg, Deps{
		ID:      p.Identity.NodeID(),
		Conn:    p.Conn,
		Store:   st,
		Clock:   p.Clock,
		Metrics: p.Metrics,
	})
	if err != nil {
		_ = st.Close()
		return Result{}, err
	}
	if err := registerGauges(p.Metrics, e); err != nil {
		_ = st.Close()
		return Result{}, err
	}
	return Result{Engine: e, Store: st}, nil
}

// registerGauges 注册按需求值的状态指标
func registerGauges(m *metrics.Metrics, e *Engine) error {
	if m == nil {
		return nil
	}
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"routing_contacts", "Contacts in the routing table.", func() float64 { return float64(e.table.Size()) }},
		{"store_keys", "Distinct keys held locally.", func() float64 { return float64(len(e.store.Keys())) }},
		{"store_values", "Values held locally.", func() float64 { return float64(e.store.Len()) }},
		{"pending_accepted", "Accepted store handshakes awaiting data.", func() float64 { return float64(e.pending.accepted.len()) }},
		{"pending_sent", "Sent store queries awaiting a response.", func() float64 { return float64(e.pending.sent.len()) }},
		{"pending_responses", "Responses not yet claimed by a caller.", func() float64 { return float64(e.pending.responses.len()) }},
	}
	for _, g := range gauges {
		if err := m.GaugeFunc(g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return m.CounterFunc("observed_dropped_total", "Observed contacts dropped because the queue was full.",
		func() float64 { return float64(e.observedDropped.Load()) })
}

func registerLifecycle(lc fx.Lifecycle, e *Engine, st *store.Store) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			st.Start()
			if err := e.Start(); err != nil {
				logger.Error("DHT 引擎启动失败", "error", err)
				return err
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			err := e.Stop()
			if cerr := st.Close(); cerr != nil {
				logger.Warn("值存储关闭失败", "error", cerr)
				if err == nil {
					err = cerr
				}
			}
			return err
		},
	})
}
