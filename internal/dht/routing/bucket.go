package routing

import (
	"sync"

	"github.com/dep2p/go-kad/pkg/types"
)

// bucket 容量受限的联系人序列
//
// 按确认时间排序：头部最陈旧，尾部最新。
type bucket struct {
	mu       sync.RWMutex
	contacts []types.Contact
}

func newBucket(k int) *bucket {
	return &bucket{contacts: make([]types.Contact, 0, k)}
}

func (b *bucket) size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.contacts)
}

func (b *bucket) indexOf(id types.ID) int {
	for i, c := range b.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (b *bucket) get(id types.ID) (types.Contact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.indexOf(id); i >= 0 {
		return b.contacts[i], true
	}
	return types.Contact{}, false
}

// head 桶满时返回头部联系人
func (b *bucket) head(k int) (types.Contact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.contacts) < k {
		return types.Contact{}, false
	}
	return b.contacts[0], true
}

// append 追加到尾部；已存在时替换并移到尾部
func (b *bucket) append(c types.Contact, k int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.indexOf(c.ID); i >= 0 {
		b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	} else if len(b.contacts) >= k {
		return ErrBucketFull
	}
	b.contacts = append(b.contacts, c)
	return nil
}

func (b *bucket) remove(id types.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	return true
}

// moveToTail 把联系人移到尾部，不存在时返回 false
func (b *bucket) moveToTail(id types.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	c := b.contacts[i]
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	b.contacts = append(b.contacts, c)
	return true
}

func (b *bucket) snapshot() []types.Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}
