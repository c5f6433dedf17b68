// Package udp 提供双栈 UDP 数据报传输
//
// 单个套接字同时收发 IPv4 与 IPv6 数据报；IPv4 映射地址在返回前被还原。
// 入站数据报按来源 IP 做令牌桶限速，超出预算的数据报在解码前丢弃。
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-kad/internal/core/transport"
	"github.com/dep2p/go-kad/pkg/lib/log"
)

var logger = log.Logger("core/transport/udp")

// MaxDatagramSize 最大数据报长度
const MaxDatagramSize = 65507

// DefaultLimiterCacheSize 限速器缓存容量（来源 IP 数）
const DefaultLimiterCacheSize = 4096

// Config UDP 传输配置
type Config struct {
	// Port 监听端口，0 表示由系统分配
	Port int

	// InboundRate 每个来源 IP 每秒允许的数据报数，0 表示不限速
	InboundRate float64

	// InboundBurst 突发上限
	InboundBurst int

	// LimiterCacheSize 限速器缓存容量
	LimiterCacheSize int
}

// Transport UDP 传输
type Transport struct {
	conn *net.UDPConn
	cfg  Config

	limiters *lru.Cache[netip.Addr, *rate.Limiter]
	limMu    sync.Mutex

	dropped atomic.Uint64
	closed  atomic.Bool
}

var _ transport.Conn = (*Transport)(nil)

// Listen 在所有地址上监听 UDP
func Listen(cfg Config) (*Transport, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("udp: invalid port %d", cfg.Port)
	}
	if cfg.LimiterCacheSize <= 0 {
		cfg.LimiterCacheSize = DefaultLimiterCacheSize
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("udp: listen on port %d: %w", cfg.Port, err)
	}

	t := &Transport{conn: conn, cfg: cfg}
	if cfg.InboundRate > 0 {
		t.limiters, err = lru.New[netip.Addr, *rate.Limiter](cfg.LimiterCacheSize)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	logger.Info("UDP 传输已监听", "addr", t.LocalAddr().String(), "inboundRate", cfg.InboundRate)
	return t, nil
}

// Receive 读取下一个被允许的数据报
func (t *Transport) Receive(buf []byte) (int, netip.AddrPort, error) {
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return 0, netip.AddrPort{}, transport.ErrClosed
			}
			return 0, netip.AddrPort{}, err
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		if !t.allow(from.Addr()) {
			t.dropped.Add(1)
			logger.Debug("入站数据报超出限速，已丢弃", "from", from.String())
			continue
		}
		return n, from, nil
	}
}

func (t *Transport) allow(addr netip.Addr) bool {
	if t.limiters == nil {
		return true
	}

	t.limMu.Lock()
	lim, ok := t.limiters.Get(addr)
	if !ok {
		lim = rate.NewLimiter(rate.Limit(t.cfg.InboundRate), t.cfg.InboundBurst)
		t.limiters.Add(addr, lim)
	}
	t.limMu.Unlock()

	return lim.Allow()
}

// Send 发送一个数据报
func (t *Transport) Send(frame []byte, to netip.AddrPort) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	if len(frame) > MaxDatagramSize {
		return fmt.Errorf("%w: %d bytes", transport.ErrFrameTooLarge, len(frame))
	}
	if _, err := t.conn.WriteToUDPAddrPort(frame, to); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.ErrClosed
		}
		return err
	}
	return nil
}

// LocalAddr 本地监听地址
func (t *Transport) LocalAddr() netip.AddrPort {
	ap := t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Port 本地监听端口
func (t *Transport) Port() int {
	return int(t.LocalAddr().Port())
}

// Dropped 因限速丢弃的数据报数
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

// Close 关闭套接字
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	logger.Debug("UDP 传输已关闭", "port", t.Port())
	return t.conn.Close()
}
