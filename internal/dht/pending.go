package dht

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-kad/internal/dht/protocol"
	"github.com/dep2p/go-kad/pkg/types"
)

// ============================================================================
//                              按会话 ID 索引的挂起记录
// ============================================================================

type timed[V any] struct {
	value V
	at    time.Time
}

// ageCache 以会话 ID 为键、带时间戳的有界缓存
//
// 超过容量时淘汰最久未用的记录；超过最大年龄的记录由 sweep 清理。
type ageCache[V any] struct {
	mu    sync.Mutex
	items *lru.Cache[types.ID, timed[V]]
}

func newAgeCache[V any](capacity int) *ageCache[V] {
	items, err := lru.New[types.ID, timed[V]](capacity)
	if err != nil {
		// 仅在 capacity <= 0 时发生，Config.Validate 已排除
		panic(err)
	}
	return &ageCache[V]{items: items}
}

func (c *ageCache[V]) put(conv types.ID, v V, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(conv, timed[V]{value: v, at: at})
}

// take 取出并删除记录
func (c *ageCache[V]) take(conv types.ID) (V, bool) {
	return c.takeIf(conv, func(V) bool { return true })
}

// takeIf 仅当 match 为真时取出并删除记录
func (c *ageCache[V]) takeIf(conv types.ID, match func(V) bool) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items.Peek(conv)
	if !ok || !match(e.value) {
		return zero, false
	}
	c.items.Remove(conv)
	return e.value, true
}

func (c *ageCache[V]) has(conv types.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Contains(conv)
}

// sweep 删除 at 早于 cutoff 的记录，返回删除数
func (c *ageCache[V]) sweep(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, conv := range c.items.Keys() {
		if e, ok := c.items.Peek(conv); ok && e.at.Before(cutoff) {
			c.items.Remove(conv)
			removed++
		}
	}
	return removed
}

func (c *ageCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// sentStore 已发出 StoreQuery、等待 StoreResponse 的记录
type sentStore struct {
	key         types.ID
	value       []byte
	publishedAt time.Time
}

// pending 三类挂起记录
type pending struct {
	accepted  *ageCache[struct{}]
	sent      *ageCache[sentStore]
	responses *ageCache[protocol.Response]
}

func newPending(capacity int) *pending {
	return &pending{
		accepted:  newAgeCache[struct{}](capacity),
		sent:      newAgeCache[sentStore](capacity),
		responses: newAgeCache[protocol.Response](capacity),
	}
}

func (p *pending) sweep(cutoff time.Time) int {
	return p.accepted.sweep(cutoff) + p.sent.sweep(cutoff) + p.responses.sweep(cutoff)
}
