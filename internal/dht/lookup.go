package dht

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-kad/pkg/types"
)

// ============================================================================
//                           迭代查找
// ============================================================================

// errValueFound 找到值后中止本轮其余请求
var errValueFound = errors.New("dht: value found")

type candidate struct {
	contact types.Contact
	queried bool
}

// shortlist 按到 target 的 XOR 距离排序的候选集
//
// 无响应的候选会被移除，且不会再次加入。
type shortlist struct {
	target  types.ID
	own     types.ID
	entries []candidate
	seen    map[types.ID]struct{}
}

func newShortlist(target, own types.ID) *shortlist {
	return &shortlist{target: target, own: own, seen: make(map[types.ID]struct{})}
}

func (s *shortlist) add(contacts []types.Contact) {
	added := false
	for _, c := range contacts {
		if c.ID == s.own {
			continue
		}
		if _, ok := s.seen[c.ID]; ok {
			continue
		}
		s.seen[c.ID] = struct{}{}
		s.entries = append(s.entries, candidate{contact: c})
		added = true
	}
	if added {
		sort.SliceStable(s.entries, func(i, j int) bool {
			return s.entries[i].contact.ID.CloserTo(s.target, s.entries[j].contact.ID)
		})
	}
}

// next 取出至多 n 个最近的未查询候选并标记为已查询
func (s *shortlist) next(n int) []types.Contact {
	var batch []types.Contact
	for i := range s.entries {
		if len(batch) >= n {
			break
		}
		if !s.entries[i].queried {
			s.entries[i].queried = true
			batch = append(batch, s.entries[i].contact)
		}
	}
	return batch
}

func (s *shortlist) remove(id types.ID) {
	for i := range s.entries {
		if s.entries[i].contact.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// explored 已应答的候选数
func (s *shortlist) explored() int {
	n := 0
	for _, c := range s.entries {
		if c.queried {
			n++
		}
	}
	return n
}

// closest 候选集中最近的至多 n 个，含尚未查询的候选
func (s *shortlist) closest(n int) []types.Contact {
	out := make([]types.Contact, 0, min(n, len(s.entries)))
	for _, c := range s.entries {
		if len(out) >= n {
			break
		}
		out = append(out, c.contact)
	}
	return out
}

// lookup 迭代查找距离 target 最近的 k 个联系人
//
// 候选集以路由表中最近的 α 个联系人为起点，之后只扩充对端建议的联系人。
// findValue 为真时任一对端返回值即结束，返回其值列表。
func (e *Engine) lookup(ctx context.Context, target types.ID, findValue bool) ([]types.Contact, [][]byte) {
	k, alpha := e.cfg.BucketSize, e.cfg.Alpha
	started := time.Now()

	if target != e.id {
		e.table.Touch(target)
	}

	sl := newShortlist(target, e.id)
	sl.add(e.table.Closest(alpha, target, e.id))

	var (
		mu     sync.Mutex
		values [][]byte
		rounds int
	)

	for ctx.Err() == nil && e.ctx.Err() == nil {
		mu.Lock()
		batch := sl.next(alpha)
		mu.Unlock()
		if len(batch) == 0 {
			break
		}
		rounds++

		g, gctx := errgroup.WithContext(ctx)
		for _, c := range batch {
			c := c
			g.Go(func() error {
				var (
					found    [][]byte
					contacts []types.Contact
					ok       bool
				)
				if findValue {
					found, contacts, ok = e.findValue(gctx, c, target)
				} else {
					contacts, ok = e.findNode(gctx, c, target)
				}

				mu.Lock()
				defer mu.Unlock()
				if !ok {
					sl.remove(c.ID)
					return nil
				}
				if len(found) > 0 {
					if values == nil {
						values = found
					}
					return errValueFound
				}
				sl.add(contacts)
				return nil
			})
		}

		if err := g.Wait(); errors.Is(err, errValueFound) {
			logger.Debug("查找命中值", "target", target.ShortString(), "rounds", rounds, "duration", time.Since(started))
			return nil, values
		}

		mu.Lock()
		done := sl.explored() >= k
		mu.Unlock()
		if done {
			break
		}
	}

	result := sl.closest(k)
	closest := "-"
	if len(result) > 0 {
		closest = result[0].String()
	}
	logger.Debug("查找完成",
		"target", target.ShortString(),
		"findValue", findValue,
		"rounds", rounds,
		"results", len(result),
		"closest", closest,
		"duration", time.Since(started),
	)
	return result, nil
}

// ============================================================================
//                           迭代存储
// ============================================================================

// iterativeStore 找到距离 key 最近的 k 个节点并逐一发起存储握手
//
// 网络中没有其他节点时不视为错误。
func (e *Engine) iterativeStore(ctx context.Context, key types.ID, value []byte, publishedAt time.Time) error {
	contacts, _ := e.lookup(ctx, key, false)

	var errs error
	for _, c := range contacts {
		if err := e.storeAt(c, key, value, publishedAt); err != nil {
			errs = multierr.Append(errs, NewError("store", err, c.String()))
		}
	}
	logger.Debug("已发起存储握手", "key", key.ShortString(), "peers", len(contacts))
	return errs
}
