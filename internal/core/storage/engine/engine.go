// Package engine 定义存储引擎接口
//
// LocalStore 的索引和值负载都通过本接口落盘。实现必须线程安全；
// 批量写入在 Write 之前与其他并发操作相互独立。
package engine

// Engine 存储引擎接口
type Engine interface {
	// Get 读取键值，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入键值对
	Put(key, value []byte) error

	// Delete 删除键，键不存在不视为错误
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// NewBatch 创建批量写入对象
	NewBatch() Batch

	// NewPrefixIterator 创建前缀迭代器，调用者负责 Close
	NewPrefixIterator(prefix []byte) Iterator

	// Start 启动后台任务（值日志 GC 等）
	Start() error

	// Sync 将已写入的数据同步到磁盘
	Sync() error

	// Stats 返回统计快照
	Stats() Stats

	// Close 关闭引擎，可重复调用
	Close() error
}

// Batch 批量写入接口
//
// 将多个写入合并为一次提交。不是线程安全的。
type Batch interface {
	// Put 添加写入操作
	Put(key, value []byte)

	// Delete 添加删除操作
	Delete(key []byte)

	// Write 提交所有操作，提交后批量对象被重置
	Write() error

	// Size 返回待提交的操作数量
	Size() int

	// Cancel 丢弃未提交的操作
	Cancel()
}

// Iterator 迭代器接口
//
// 使用模式:
//
//	iter := eng.NewPrefixIterator(prefix)
//	defer iter.Close()
//
//	for iter.First(); iter.Valid(); iter.Next() {
//	    key, value := iter.Key(), iter.Value()
//	}
//	return iter.Error()
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool

	// Key 返回当前键的副本
	Key() []byte

	// Value 返回当前值的副本
	Value() []byte

	Close()
	Error() error
}

// Stats 引擎统计信息
type Stats struct {
	DiskSize   int64 `json:"disk_size"`
	LSMSize    int64 `json:"lsm_size"`
	VlogSize   int64 `json:"vlog_size"`
	NumReads   int64 `json:"num_reads"`
	NumWrites  int64 `json:"num_writes"`
	NumDeletes int64 `json:"num_deletes"`
}
