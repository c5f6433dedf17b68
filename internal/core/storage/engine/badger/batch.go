package badger

import (
	"sync/atomic"

	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dgraph-io/badger/v4"
)

// WriteBatch BadgerDB 批量写入
//
// 底层 badger.WriteBatch 在首次写入时创建，提交或丢弃后即释放，
// 因此空闲的 WriteBatch 不持有事务。
type WriteBatch struct {
	db     *Engine
	batch  *badger.WriteBatch
	count  atomic.Int32
	closed atomic.Bool
	err    error
}

func (b *WriteBatch) current() *badger.WriteBatch {
	if b.batch == nil {
		b.batch = b.db.db.NewWriteBatch()
	}
	return b.batch
}

// Put 添加一个写入操作
func (b *WriteBatch) Put(key, value []byte) {
	if b.closed.Load() || len(key) == 0 {
		return
	}
	if err := b.current().Set(key, value); err != nil && b.err == nil {
		b.err = err
	}
	b.count.Add(1)
}

// Delete 添加一个删除操作
func (b *WriteBatch) Delete(key []byte) {
	if b.closed.Load() || len(key) == 0 {
		return
	}
	if err := b.current().Delete(key); err != nil && b.err == nil {
		b.err = err
	}
	b.count.Add(1)
}

// Write 提交批量写入，提交后批量对象可继续使用
func (b *WriteBatch) Write() error {
	if b.closed.Load() {
		return engine.ErrBatchClosed
	}
	if b.db.closed.Load() {
		return engine.ErrClosed
	}
	if b.db.config.ReadOnly {
		return engine.ErrReadOnly
	}
	if b.batch == nil {
		return nil
	}

	if b.err != nil {
		err := b.err
		b.batch.Cancel()
		b.reset()
		return convertError(err)
	}

	err := b.batch.Flush()
	n := int64(b.count.Load())
	b.reset()
	if err != nil {
		return convertError(err)
	}

	b.db.stats.numWrites.Add(n)
	return nil
}

// Size 返回批量中的操作数量
func (b *WriteBatch) Size() int {
	return int(b.count.Load())
}

// Cancel 丢弃未提交的操作并关闭批量对象
func (b *WriteBatch) Cancel() {
	if b.closed.Swap(true) {
		return
	}
	if b.batch != nil {
		b.batch.Cancel()
		b.reset()
	}
}

func (b *WriteBatch) reset() {
	b.batch = nil
	b.count.Store(0)
	b.err = nil
}

var _ engine.Batch = (*WriteBatch)(nil)
