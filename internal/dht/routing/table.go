// Package routing 实现以本节点 ID 为中心的 Kademlia 路由表
//
// 路由表由 IDBits 个桶组成，联系人按与本节点 ID 的最高不同位选桶。
// 每个桶独立加锁，桶时间戳向量另有一把锁；跨桶操作不保证原子性。
package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kad/pkg/types"
)

// DefaultBucketSize 默认桶容量 k
const DefaultBucketSize = 20

// ============================================================================
//                              Table
// ============================================================================

// Table 路由表
type Table struct {
	own   types.ID
	k     int
	clock clock.Clock

	buckets [types.IDBits]*bucket

	tsMu       sync.RWMutex
	timestamps [types.IDBits]time.Time
}

// New 创建路由表
//
// k <= 0 时使用 DefaultBucketSize；clk 为 nil 时使用真实时钟。
func New(own types.ID, k int, clk clock.Clock) *Table {
	if k <= 0 {
		k = DefaultBucketSize
	}
	if clk == nil {
		clk = clock.New()
	}

	t := &Table{own: own, k: k, clock: clk}
	now := clk.Now()
	for i := range t.buckets {
		t.buckets[i] = newBucket(k)
		t.timestamps[i] = now
	}
	return t
}

// Own 本节点 ID
func (t *Table) Own() types.ID { return t.own }

// BucketSize 桶容量
func (t *Table) BucketSize() int { return t.k }

// BucketIndexFor 返回 id 所在桶的索引
func (t *Table) BucketIndexFor(id types.ID) (int, error) {
	if id == t.own {
		return 0, ErrOwnID
	}
	return t.own.HighestDifferingBit(id), nil
}

func (t *Table) bucketFor(id types.ID) (*bucket, int, error) {
	idx, err := t.BucketIndexFor(id)
	if err != nil {
		return nil, 0, err
	}
	return t.buckets[idx], idx, nil
}

// Blocker 目标桶已满时返回其头部（最陈旧）联系人
func (t *Table) Blocker(candidate types.ID) (types.Contact, bool) {
	b, _, err := t.bucketFor(candidate)
	if err != nil {
		return types.Contact{}, false
	}
	return b.head(t.k)
}

// Put 将联系人追加到其桶尾部并刷新桶时间戳
//
// 已存在的同 ID 联系人会被替换。桶满时返回 ErrBucketFull。
func (t *Table) Put(c types.Contact) error {
	b, idx, err := t.bucketFor(c.ID)
	if err != nil {
		return err
	}
	if err := b.append(c, t.k); err != nil {
		return err
	}
	t.stamp(idx)
	return nil
}

// Get 查找联系人
func (t *Table) Get(id types.ID) (types.Contact, bool) {
	b, _, err := t.bucketFor(id)
	if err != nil {
		return types.Contact{}, false
	}
	return b.get(id)
}

// Contains 是否已知该联系人
func (t *Table) Contains(id types.ID) bool {
	_, ok := t.Get(id)
	return ok
}

// Remove 移除联系人，返回是否存在
func (t *Table) Remove(id types.ID) bool {
	b, _, err := t.bucketFor(id)
	if err != nil {
		return false
	}
	return b.remove(id)
}

// Promote 把联系人移到桶尾部并刷新桶时间戳；不存在时无操作
func (t *Table) Promote(id types.ID) {
	b, idx, err := t.bucketFor(id)
	if err != nil {
		return
	}
	if b.moveToTail(id) {
		t.stamp(idx)
	}
}

// Touch 刷新 key 所在桶的时间戳
func (t *Table) Touch(key types.ID) {
	idx, err := t.BucketIndexFor(key)
	if err != nil {
		return
	}
	t.stamp(idx)
}

func (t *Table) stamp(idx int) {
	now := t.clock.Now()
	t.tsMu.Lock()
	t.timestamps[idx] = now
	t.tsMu.Unlock()
}

// LastAccess 返回桶的最后访问时间
func (t *Table) LastAccess(idx int) time.Time {
	t.tsMu.RLock()
	defer t.tsMu.RUnlock()
	return t.timestamps[idx]
}

// ============================================================================
//                              查询
// ============================================================================

// Contacts 所有联系人快照，按桶索引与桶内顺序排列
func (t *Table) Contacts() []types.Contact {
	var out []types.Contact
	for _, b := range t.buckets {
		out = append(out, b.snapshot()...)
	}
	return out
}

// Size 联系人总数
func (t *Table) Size() int {
	n := 0
	for _, b := range t.buckets {
		n += b.size()
	}
	return n
}

// Closest 返回距离 target 最近的至多 n 个联系人，不含 exclude
//
// 结果按 XOR 距离非降序排列，距离相同时保持扫描顺序。
func (t *Table) Closest(n int, target, exclude types.ID) []types.Contact {
	if n <= 0 {
		return nil
	}

	all := t.Contacts()
	candidates := all[:0]
	for _, c := range all {
		if c.ID != exclude {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ID.CloserTo(target, candidates[j].ID)
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// CountCloserThan 统计到 key 的距离严格小于本节点的已知联系人数
func (t *Table) CountCloserThan(key types.ID) int {
	n := 0
	for _, c := range t.Contacts() {
		if c.ID.CloserTo(key, t.own) {
			n++
		}
	}
	return n
}

// StaleBucketProbes 为每个时间戳早于 threshold 的桶生成一个落在该桶的随机 ID
func (t *Table) StaleBucketProbes(threshold time.Duration) []types.ID {
	cutoff := t.clock.Now().Add(-threshold)

	var stale []int
	t.tsMu.RLock()
	for i, ts := range t.timestamps {
		if ts.Before(cutoff) {
			stale = append(stale, i)
		}
	}
	t.tsMu.RUnlock()

	probes := make([]types.ID, 0, len(stale))
	for _, i := range stale {
		probes = append(probes, t.own.RandomizeBeyond(i))
	}
	return probes
}
