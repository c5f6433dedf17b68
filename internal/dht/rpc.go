package dht

import (
	"context"
	"net/netip"
	"time"

	"github.com/dep2p/go-kad/internal/dht/protocol"
	"github.com/dep2p/go-kad/pkg/types"
)

// ============================================================================
//                              发送
// ============================================================================

// send 编码并发送一条消息
func (e *Engine) send(m protocol.Message, to netip.AddrPort) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := e.conn.Send(frame, to); err != nil {
		return err
	}
	e.meter.MessageSent(m.Name(), len(frame))
	logger.Debug("发送消息", "kind", m.Name(), "to", to.String(), "conv", m.Conversation().ShortString())
	return nil
}

// reply 发送响应，失败只记录日志
func (e *Engine) reply(m protocol.Response, to netip.AddrPort) {
	if err := e.send(m, to); err != nil {
		logger.Debug("发送响应失败", "kind", m.Name(), "to", to.String(), "error", err)
	}
}

// ============================================================================
//                              同步调用
// ============================================================================

// await 轮询响应缓存，直到出现满足 match 的响应、超时或任一上下文结束
func (e *Engine) await(ctx context.Context, conv types.ID, match func(protocol.Response) bool) (protocol.Response, bool) {
	if r, ok := e.pending.responses.takeIf(conv, match); ok {
		return r, true
	}

	deadline := time.NewTimer(e.cfg.RPCTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(e.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-e.ctx.Done():
			return nil, false
		case <-deadline.C:
			return e.pending.responses.takeIf(conv, match)
		case <-tick.C:
			if r, ok := e.pending.responses.takeIf(conv, match); ok {
				return r, true
			}
		}
	}
}

// call 发送请求并等待类型为 T 的响应
func call[T protocol.Response](ctx context.Context, e *Engine, req protocol.Request, to netip.AddrPort) (T, bool) {
	var zero T
	start := time.Now()
	if err := e.send(req, to); err != nil {
		logger.Debug("发送请求失败", "kind", req.Name(), "to", to.String(), "error", err)
		return zero, false
	}

	r, ok := e.await(ctx, req.Conversation(), func(r protocol.Response) bool {
		_, ok := r.(T)
		return ok
	})
	e.meter.CallFinished(req.Name(), ok, time.Since(start))
	if !ok {
		logger.Debug("请求无响应", "kind", req.Name(), "to", to.String())
		return zero, false
	}
	return r.(T), true
}

// Ping 探测 addr 是否存活
func (e *Engine) Ping(ctx context.Context, addr netip.AddrPort) bool {
	if !e.running() {
		return false
	}
	_, ok := call[*protocol.Pong](ctx, e, protocol.NewPing(e.id), addr)
	return ok
}

// findNode 向 c 请求距离 target 最近的联系人
func (e *Engine) findNode(ctx context.Context, c types.Contact, target types.ID) ([]types.Contact, bool) {
	addr, err := c.AddrPort()
	if err != nil {
		return nil, false
	}
	resp, ok := call[*protocol.FindNodeResponse](ctx, e, protocol.NewFindNode(e.id, target), addr)
	if !ok {
		return nil, false
	}
	return resp.Contacts, true
}

// findValue 向 c 请求 key 下的值
//
// 对端持有值时返回 values，否则返回其已知的最近联系人。
func (e *Engine) findValue(ctx context.Context, c types.Contact, key types.ID) (values [][]byte, contacts []types.Contact, ok bool) {
	addr, err := c.AddrPort()
	if err != nil {
		return nil, nil, false
	}

	req := protocol.NewFindValue(e.id, key)
	start := time.Now()
	if err := e.send(req, addr); err != nil {
		logger.Debug("发送请求失败", "kind", req.Name(), "to", addr.String(), "error", err)
		return nil, nil, false
	}

	r, ok := e.await(ctx, req.Conversation(), func(r protocol.Response) bool {
		switch r.(type) {
		case *protocol.FindValueDataResponse, *protocol.FindValueContactResponse:
			return true
		}
		return false
	})
	e.meter.CallFinished(req.Name(), ok, time.Since(start))
	if !ok {
		return nil, nil, false
	}

	switch resp := r.(type) {
	case *protocol.FindValueDataResponse:
		if len(resp.Values) > 0 {
			return resp.Values, nil, true
		}
		return nil, nil, true
	case *protocol.FindValueContactResponse:
		return nil, resp.Contacts, true
	}
	return nil, nil, false
}

// storeAt 向 c 发出 StoreQuery，值负载在对方回复 ShouldSendData 后推送
func (e *Engine) storeAt(c types.Contact, key types.ID, value []byte, publishedAt time.Time) error {
	addr, err := c.AddrPort()
	if err != nil {
		return err
	}

	q := protocol.NewStoreQuery(e.id, key, types.HashID(value), publishedAt, len(value))
	e.pending.sent.put(q.Conversation(), sentStore{key: key, value: value, publishedAt: q.PublishedAt}, e.clock.Now())
	if err := e.send(q, addr); err != nil {
		e.pending.sent.take(q.Conversation())
		return err
	}
	return nil
}
