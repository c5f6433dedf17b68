package dht

import (
	"errors"
	"net/netip"

	"github.com/dep2p/go-kad/internal/core/transport"
	"github.com/dep2p/go-kad/internal/dht/protocol"
	"github.com/dep2p/go-kad/pkg/types"
)

// ============================================================================
//                              接收循环
// ============================================================================

func (e *Engine) receiveLoop() {
	defer e.wg.Done()

	buf := make([]byte, protocol.MaxFrameSize)
	for {
		n, from, err := e.conn.Receive(buf)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || e.ctx.Err() != nil {
				return
			}
			logger.Debug("接收数据报失败", "error", err)
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			e.meter.DecodeFailed()
			logger.Debug("丢弃无法解析的数据报", "from", from.String(), "size", n, "error", err)
			continue
		}
		e.meter.MessageReceived(msg.Name(), n)
		e.dispatch(msg, from)
	}
}

// dispatch 按消息类型分派
//
// 每条消息都先把发送者加入观察队列。
func (e *Engine) dispatch(msg protocol.Message, from netip.AddrPort) {
	if msg.Sender() == e.id {
		return
	}
	logger.Debug("收到消息", "kind", msg.Name(), "from", from.String(), "conv", msg.Conversation().ShortString())
	e.observe(types.ContactFromAddrPort(msg.Sender(), from))

	switch m := msg.(type) {
	case *protocol.Ping:
		e.reply(protocol.NewPong(e.id, m), from)
	case *protocol.FindNode:
		e.handleFindNode(m, from)
	case *protocol.FindValue:
		e.handleFindValue(m, from)
	case *protocol.StoreQuery:
		e.handleStoreQuery(m, from)
	case *protocol.StoreResponse:
		e.handleStoreResponse(m, from)
	case *protocol.StoreData:
		e.handleStoreData(m)
	case protocol.Response:
		e.pending.responses.put(m.Conversation(), m, e.clock.Now())
	default:
		logger.Debug("忽略未处理的消息类型", "kind", msg.Name())
	}
}

// observe 将联系人放入观察队列，队列满时丢弃
func (e *Engine) observe(c types.Contact) {
	select {
	case e.contacts <- c:
	default:
		e.observedDropped.Add(1)
	}
}

// ============================================================================
//                              查询处理
// ============================================================================

func (e *Engine) handleFindNode(m *protocol.FindNode, from netip.AddrPort) {
	contacts := e.table.Closest(e.cfg.BucketSize, m.Target, m.Sender())
	e.reply(protocol.NewFindNodeResponse(e.id, m, contacts), from)
}

func (e *Engine) handleFindValue(m *protocol.FindValue, from netip.AddrPort) {
	if !e.store.Contains(m.Key) {
		contacts := e.table.Closest(e.cfg.BucketSize, m.Key, m.Sender())
		e.reply(protocol.NewFindValueContactResponse(e.id, m, contacts), from)
		return
	}

	values := e.store.Get(m.Key)
	for {
		resp := protocol.NewFindValueDataResponse(e.id, m, values)
		_, err := protocol.Encode(resp)
		if err == nil {
			e.reply(resp, from)
			return
		}
		if !errors.Is(err, protocol.ErrFrameTooLarge) || len(values) <= 1 {
			logger.Debug("值响应无法编码", "key", m.Key.ShortString(), "values", len(values), "error", err)
			return
		}
		// 帧超长时逐个丢弃值
		values = values[:len(values)-1]
	}
}

// ============================================================================
//                              存储握手
// ============================================================================

// handleStoreQuery 处理存储询问
//
// 尚未持有该值时记录接受并请求数据；已持有时仅在发布时间严格更新
// 且不超前 MaxClockSkew 时刷新时间戳，不回复。
func (e *Engine) handleStoreQuery(m *protocol.StoreQuery, from netip.AddrPort) {
	if m.ValueSize > e.cfg.MaxValueSize {
		logger.Debug("拒绝超长值", "key", m.Key.ShortString(), "size", m.ValueSize)
		return
	}

	now := e.clock.Now()
	if !e.store.ContainsValue(m.Key, m.DataHash) {
		e.pending.accepted.put(m.Conversation(), struct{}{}, now)
		e.reply(protocol.NewStoreResponse(e.id, m, true), from)
		return
	}

	current, ok := e.store.PublicationTime(m.Key, m.DataHash)
	if !ok || !m.PublishedAt.After(current) || !m.PublishedAt.Before(now.Add(e.cfg.MaxClockSkew)) {
		return
	}
	if e.store.Restamp(m.Key, m.DataHash, m.PublishedAt, e.cfg.ValueTTL) {
		logger.Debug("刷新值发布时间", "key", m.Key.ShortString(), "publishedAt", m.PublishedAt)
	}
}

func (e *Engine) handleStoreResponse(m *protocol.StoreResponse, from netip.AddrPort) {
	if !m.ShouldSendData {
		return
	}
	rec, ok := e.pending.sent.take(m.Conversation())
	if !ok {
		return
	}
	e.reply(protocol.NewStoreData(e.id, m, rec.key, rec.value, rec.publishedAt), from)
}

// handleStoreData 仅接受此前已应允的会话，按收到的负载重新计算内容哈希
func (e *Engine) handleStoreData(m *protocol.StoreData) {
	if _, ok := e.pending.accepted.take(m.Conversation()); !ok {
		logger.Debug("丢弃未经询问的值负载", "key", m.Key.ShortString())
		return
	}
	if len(m.Data) > e.cfg.MaxValueSize {
		return
	}
	if !m.PublishedAt.Before(e.clock.Now().Add(e.cfg.MaxClockSkew)) {
		logger.Debug("丢弃发布时间超前的值", "key", m.Key.ShortString(), "publishedAt", m.PublishedAt)
		return
	}

	hash := types.HashID(m.Data)
	if err := e.store.Put(m.Key, hash, m.Data, m.PublishedAt, e.cfg.ValueTTL); err != nil {
		logger.Warn("保存值失败", "key", m.Key.ShortString(), "error", err)
		return
	}
	logger.Debug("已保存值", "key", m.Key.ShortString(), "hash", hash.ShortString(), "size", len(m.Data))
}
