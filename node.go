package kad

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-kad/internal/core/identity"
	"github.com/dep2p/go-kad/internal/core/metrics"
	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dep2p/go-kad/internal/core/transport/udp"
	"github.com/dep2p/go-kad/internal/dht"
	"github.com/dep2p/go-kad/internal/dht/store"
	"github.com/dep2p/go-kad/internal/discovery/registry"
	"github.com/dep2p/go-kad/pkg/lib/log"
	"github.com/dep2p/go-kad/pkg/types"
)

var logger = log.Logger("kad")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int32

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动、引导入网）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateClosed 已关闭，不可重新启动
	StateClosed
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// shutdownTimeout 关闭超时（Fx App Stop）
	shutdownTimeout = 10 * time.Second
)

// Node Kademlia 节点
//
// Node 是用户与网络交互的主入口，聚合了身份、存储、传输与 DHT 引擎。
// UDP 套接字在 New 时绑定，因此 Port 在 Start 之前即可用。
type Node struct {
	mu    sync.Mutex
	state atomic.Int32

	opts *options
	app  *fx.App

	engine    *dht.Engine
	store     *store.Store
	transport *udp.Transport
	identity  identity.Provider
	storage   engine.Engine
	metrics   *metrics.Metrics

	source registry.BootstrapSource
	sink   registry.RegistrationSink

	started bool
	joined  atomic.Bool
}

// New 创建节点
//
// 组装全部组件并绑定端口，但不启动后台循环，也不入网。
func New(ctx context.Context, opts ...Option) (*Node, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}
	applyLogConfig(o)

	n := &Node{
		opts:   o,
		source: o.source,
		sink:   o.sink,
	}

	app, err := buildFxApp(o, n)
	if err != nil {
		return nil, err
	}
	n.app = app

	logger.Info("节点已创建",
		"id", log.TruncateID(n.ID().String(), 12),
		"port", n.Port())
	return n, nil
}

// applyLogConfig 按配置设置进程默认日志
func applyLogConfig(o *options) {
	lc := o.config.Log
	if lc.Level != "" {
		log.SetLevel(log.ParseLevel(lc.Level))
	}
	switch lc.Format {
	case "json":
		log.SetJSON(true)
	case "text":
		log.SetJSON(false)
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 采用阶段化启动策略：
//  1. Initialize: 启动 Fx App（存储、传输接收循环、后台维护）
//  2. Connect: 引导、入网、登记，失败只记录日志
//  3. Running: 进入运行状态
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case n.State() == StateClosed:
		return ErrNodeClosed
	case n.started:
		return ErrAlreadyStarted
	}

	// ════════════════════════════════════════════════════════════════════════
	// Phase 1: Initialize - 启动 Fx App
	// ════════════════════════════════════════════════════════════════════════
	n.state.Store(int32(StateStarting))
	startCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	err := n.app.Start(startCtx)
	cancel()
	if err != nil {
		n.state.Store(int32(StateIdle))
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start fx app: %w", err)
	}
	n.started = true

	// ════════════════════════════════════════════════════════════════════════
	// Phase 2: Connect - 引导入网
	// ════════════════════════════════════════════════════════════════════════
	n.connect(ctx)

	// ════════════════════════════════════════════════════════════════════════
	// Phase 3: Running
	// ════════════════════════════════════════════════════════════════════════
	n.state.Store(int32(StateRunning))
	logger.Info("节点已启动",
		"port", n.Port(),
		"joined", n.joined.Load(),
		"contacts", n.engine.Table().Size())
	return nil
}

// Close 关闭节点并释放所有资源
//
// 关闭后不可重新启动。重复调用返回 nil。
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.State() == StateClosed {
		return nil
	}
	n.state.Store(int32(StateClosed))
	logger.Info("正在关闭节点")

	if !n.started {
		return n.release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		logger.Error("关闭节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已关闭")
	return nil
}

// release 释放未经过 Fx 启动的组件
//
// 未启动时 OnStop 钩子不会执行，需要逐个关闭。
func (n *Node) release() error {
	var errs error
	errs = multierr.Append(errs, n.engine.Stop())
	errs = multierr.Append(errs, n.store.Close())
	errs = multierr.Append(errs, n.storage.Close())
	errs = multierr.Append(errs, n.identity.Release())
	return errs
}

// State 返回当前节点状态
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 返回本节点标识
func (n *Node) ID() types.ID {
	return n.engine.ID()
}

// Port 返回 UDP 监听端口
func (n *Node) Port() int {
	return n.engine.Port()
}

// LocalAddr 返回本地监听地址
func (n *Node) LocalAddr() netip.AddrPort {
	return n.engine.LocalAddr()
}

// Joined 最近一次入网是否成功
func (n *Node) Joined() bool {
	return n.joined.Load()
}

// NodeStats 节点运行统计
type NodeStats struct {
	dht.Stats

	// State 节点状态
	State string

	// DroppedDatagrams 被入站限速丢弃的数据报数
	DroppedDatagrams uint64
}

// Stats 返回运行统计快照
func (n *Node) Stats() NodeStats {
	return NodeStats{
		Stats:            n.engine.Stats(),
		State:            n.State().String(),
		DroppedDatagrams: n.transport.Dropped(),
	}
}

// MetricsHandler 返回 Prometheus /metrics 处理器，未启用指标时返回 404 处理器
func (n *Node) MetricsHandler() http.Handler {
	return n.metrics.Handler()
}

// EnableDebugLogging 将进程日志级别调整为 Debug
func (n *Node) EnableDebugLogging() {
	log.EnableDebug()
	logger.Debug("已开启调试日志")
}

// ════════════════════════════════════════════════════════════════════════════
//                              存取
// ════════════════════════════════════════════════════════════════════════════

// Put 在 key 的哈希位置存储 value
func (n *Node) Put(ctx context.Context, key string, value []byte) error {
	if n.State() != StateRunning {
		return ErrNotStarted
	}
	return n.engine.Put(ctx, types.HashString(key), value)
}

// Get 返回 key 下的所有值，未找到时返回空列表
func (n *Node) Get(ctx context.Context, key string) [][]byte {
	return n.engine.Get(ctx, types.HashString(key))
}

// GetFirst 返回 key 下的第一个值，未找到时返回 nil
func (n *Node) GetFirst(ctx context.Context, key string) []byte {
	values := n.Get(ctx, key)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// FindNode 返回距离 target 最近的 k 个联系人
func (n *Node) FindNode(ctx context.Context, target types.ID) []types.Contact {
	return n.engine.FindNode(ctx, target)
}
