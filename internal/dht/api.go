package dht

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/dep2p/go-kad/internal/dht/protocol"
	"github.com/dep2p/go-kad/pkg/types"
)

// ============================================================================
//                              对外操作
// ============================================================================

// Put 以当前时间为发布时间存储 value
//
// 值先写入本地存储，再向距离 key 最近的 k 个节点发起存储握手。
// 返回的错误只反映本地写入与发送失败，不等待对端确认。
func (e *Engine) Put(ctx context.Context, key types.ID, value []byte) error {
	if !e.running() {
		return NewError("put", ErrNotStarted, "")
	}
	if len(value) > e.cfg.MaxValueSize {
		return NewError("put", ErrValueTooLarge, fmt.Sprintf("%d bytes", len(value)))
	}

	now := e.clock.Now().UTC()
	if err := e.store.Put(key, types.HashID(value), value, now, e.cfg.ValueTTL); err != nil {
		return NewError("put", err, "local store")
	}
	return e.iterativeStore(ctx, key, value, now)
}

// Get 返回 key 下的所有值
//
// 先查本地存储，未命中时在网络中迭代查找；均未找到时返回空列表。
func (e *Engine) Get(ctx context.Context, key types.ID) [][]byte {
	if values := e.store.Get(key); len(values) > 0 {
		return values
	}
	if !e.running() {
		return [][]byte{}
	}
	_, values := e.lookup(ctx, key, true)
	if values == nil {
		return [][]byte{}
	}
	return values
}

// FindNode 迭代查找距离 target 最近的 k 个联系人
func (e *Engine) FindNode(ctx context.Context, target types.ID) []types.Contact {
	if !e.running() {
		return nil
	}
	contacts, _ := e.lookup(ctx, target, false)
	return contacts
}

// Bootstrap 探测引导节点，应答后立即将其加入路由表
func (e *Engine) Bootstrap(ctx context.Context, addr netip.AddrPort) bool {
	if !e.running() {
		return false
	}
	pong, ok := call[*protocol.Pong](ctx, e, protocol.NewPing(e.id), addr)
	logger.Debug("引导节点探测", "addr", addr.String(), "alive", ok)
	if !ok {
		return false
	}
	e.consider(types.ContactFromAddrPort(pong.Sender(), addr))
	return true
}

// JoinNetwork 查找本节点 ID 以填充路由表，返回路由表是否非空
func (e *Engine) JoinNetwork(ctx context.Context) bool {
	if !e.running() {
		return false
	}
	e.lookup(ctx, e.id, false)
	joined := e.table.Size() > 0
	if joined {
		logger.Info("已加入网络", "id", e.id.ShortString(), "contacts", e.table.Size())
	} else {
		logger.Info("加入网络失败，路由表为空", "id", e.id.ShortString())
	}
	return joined
}
