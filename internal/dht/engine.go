// Package dht 实现 Kademlia 节点引擎
//
// Engine 持有路由表与本地存储，运行四个后台循环：
//
//   - 接收循环：解码数据报并分派到对应处理函数
//   - 桶维护循环：消费联系人观察队列，执行驱逐策略
//   - 缓存清理循环：清理过期的挂起请求记录
//   - 维护循环：过期清理、定期复制、刷新陈旧桶
//
// 对外的 Ping/FindNode/FindValue 是在异步 UDP 之上的同步调用：
// 请求只发送一次，随后轮询响应缓存直到出现正确类型的响应或超时。
// 超时只表示对端本次无响应，不会自动驱逐路由表条目。
package dht

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kad/internal/core/metrics"
	"github.com/dep2p/go-kad/internal/core/transport"
	"github.com/dep2p/go-kad/internal/dht/routing"
	"github.com/dep2p/go-kad/internal/dht/store"
	"github.com/dep2p/go-kad/pkg/lib/log"
	"github.com/dep2p/go-kad/pkg/types"
)

var logger = log.Logger("dht")

// Deps 引擎依赖
type Deps struct {
	// ID 本节点 ID
	ID types.ID

	// Conn 数据报传输，引擎停止时关闭
	Conn transport.Conn

	// Store 本地值存储，由调用方关闭
	Store *store.Store

	// Clock 时钟，nil 时使用真实时钟
	Clock clock.Clock

	// Metrics 指标，nil 时不记录
	Metrics *metrics.Metrics
}

// Engine Kademlia 节点引擎
type Engine struct {
	cfg   *Config
	id    types.ID
	conn  transport.Conn
	table *routing.Table
	store *store.Store
	clock clock.Clock
	meter *metrics.Metrics

	pending  *pending
	contacts chan types.Contact

	lastReplication atomic.Int64
	observedDropped atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

// New 创建引擎
func New(cfg *Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Conn == nil {
		return nil, ErrNilTransport
	}
	if deps.Store == nil {
		return nil, ErrNilStore
	}
	if deps.ID.IsZero() {
		deps.ID = types.RandomID()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		id:       deps.ID,
		conn:     deps.Conn,
		table:    routing.New(deps.ID, cfg.BucketSize, deps.Clock),
		store:    deps.Store,
		clock:    deps.Clock,
		meter:    deps.Metrics,
		pending:  newPending(cfg.CacheCapacity),
		contacts: make(chan types.Contact, cfg.ContactQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.lastReplication.Store(deps.Clock.Now().UnixNano())
	return e, nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动四个后台循环
func (e *Engine) Start() error {
	if e.stopped.Load() {
		return ErrClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.wg.Add(4)
	go e.receiveLoop()
	go e.bucketMinder()
	go e.cacheMinder()
	go e.maintenanceLoop()

	logger.Info("DHT 引擎已启动", "id", e.id.ShortString(), "addr", e.conn.LocalAddr().String())
	return nil
}

// Stop 停止所有循环并关闭传输
//
// 进行中的同步调用随即返回超时结果。
func (e *Engine) Stop() error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel()
	err := e.conn.Close()
	e.wg.Wait()
	logger.Info("DHT 引擎已停止", "id", e.id.ShortString())
	return err
}

func (e *Engine) running() bool {
	return e.started.Load() && !e.stopped.Load()
}

// ============================================================================
//                              访问器
// ============================================================================

// ID 本节点 ID
func (e *Engine) ID() types.ID { return e.id }

// LocalAddr 本地监听地址
func (e *Engine) LocalAddr() netip.AddrPort { return e.conn.LocalAddr() }

// Port 本地监听端口
func (e *Engine) Port() int { return int(e.conn.LocalAddr().Port()) }

// Table 路由表
func (e *Engine) Table() *routing.Table { return e.table }

// Store 本地存储
func (e *Engine) Store() *store.Store { return e.store }

// Config 引擎配置
func (e *Engine) Config() *Config { return e.cfg }

// CountCloserThan 已知联系人中比本节点更接近 key 的数量，用于粗略估计网络位置
func (e *Engine) CountCloserThan(key types.ID) int {
	return e.table.CountCloserThan(key)
}

// Stats 运行状态快照
type Stats struct {
	ID               types.ID
	Port             int
	Contacts         int
	Keys             int
	Values           int
	PendingAccepted  int
	PendingSent      int
	PendingResponses int
	ObservedDropped  uint64
	LastReplication  time.Time
}

// Stats 返回运行状态快照
func (e *Engine) Stats() Stats {
	return Stats{
		ID:               e.id,
		Port:             e.Port(),
		Contacts:         e.table.Size(),
		Keys:             len(e.store.Keys()),
		Values:           e.store.Len(),
		PendingAccepted:  e.pending.accepted.len(),
		PendingSent:      e.pending.sent.len(),
		PendingResponses: e.pending.responses.len(),
		ObservedDropped:  e.observedDropped.Load(),
		LastReplication:  time.Unix(0, e.lastReplication.Load()).UTC(),
	}
}
