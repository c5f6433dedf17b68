// Package kv 提供带前缀隔离的 KV 存储
//
// Store 在存储引擎之上为每个组件提供独立的键空间。
//
// # 键空间
//
//   - d/i/ - DHT 值索引（key, contentHash → 发布时间与 TTL）
//   - d/v/ - DHT 值负载
//   - d/m/ - DHT 元数据
//
// 用法：
//
//	store := kv.New(eng, []byte("d/"))
//	store.Put([]byte("v/abc"), payload) // 实际键: d/v/abc
package kv

import (
	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine engine.Engine
	prefix []byte
}

// New 创建新的 Store，所有操作自动添加 prefix
func New(eng engine.Engine, prefix []byte) *Store {
	return &Store{
		engine: eng,
		prefix: append([]byte(nil), prefix...),
	}
}

func (s *Store) prefixKey(key []byte) []byte {
	if len(s.prefix) == 0 {
		return key
	}
	prefixed := make([]byte, len(s.prefix)+len(key))
	copy(prefixed, s.prefix)
	copy(prefixed[len(s.prefix):], key)
	return prefixed
}

func (s *Store) stripPrefix(key []byte) []byte {
	if len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// ============= 基础操作 =============

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.prefixKey(key))
}

// ============= 编码便捷方法 =============

// GetMsgpack 获取并反序列化 msgpack 值
func (s *Store) GetMsgpack(key []byte, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, v)
}

// PutMsgpack 序列化并存储 msgpack 值
func (s *Store) PutMsgpack(key []byte, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// ============= 前缀迭代 =============

// PrefixScan 扫描指定子前缀的所有键值对
//
// 回调返回 false 时停止。回调收到的 key 已去除 Store 前缀，保留 subPrefix。
func (s *Store) PrefixScan(subPrefix []byte, fn func(key, value []byte) bool) error {
	iter := s.engine.NewPrefixIterator(s.prefixKey(subPrefix))
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(s.stripPrefix(iter.Key()), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// Keys 返回指定子前缀的所有键
func (s *Store) Keys(subPrefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.PrefixScan(subPrefix, func(key, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// ============= 批量操作 =============

// Batch 带前缀的批量操作
type Batch struct {
	store *Store
	batch engine.Batch
}

// NewBatch 创建新的批量操作
func (s *Store) NewBatch() *Batch {
	return &Batch{
		store: s,
		batch: s.engine.NewBatch(),
	}
}

// Put 添加写入操作
func (b *Batch) Put(key, value []byte) {
	b.batch.Put(b.store.prefixKey(key), value)
}

// PutMsgpack 添加 msgpack 写入操作
func (b *Batch) PutMsgpack(key []byte, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	b.Put(key, data)
	return nil
}

// Delete 添加删除操作
func (b *Batch) Delete(key []byte) {
	b.batch.Delete(b.store.prefixKey(key))
}

// Write 提交批量操作
func (b *Batch) Write() error {
	return b.batch.Write()
}

// Size 返回操作数量
func (b *Batch) Size() int {
	return b.batch.Size()
}

// ============= 辅助方法 =============

// Sync 将底层引擎数据同步到磁盘
func (s *Store) Sync() error {
	return s.engine.Sync()
}
