// Package store 实现 DHT 本地值存储
//
// 值以 (key, contentHash) 为复合键，一个 key 下可并存多个内容不同的值。
// 值负载写入即持久化；内存索引（发布时间与 TTL）定期保存，关闭时再保存一次，
// 打开时重新加载。
//
// # 键空间（位于 kv 前缀之下）
//
//	i/<key><hash>  索引记录（msgpack）
//	v/<key><hash>  值负载
//	m/saved_at     最近一次保存索引的时间
package store

import (
	"bytes"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/vmihailenco/msgpack.v2"

	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dep2p/go-kad/internal/core/storage/kv"
	"github.com/dep2p/go-kad/pkg/lib/log"
	"github.com/dep2p/go-kad/pkg/types"
)

var logger = log.Logger("dht/store")

var (
	indexPrefix   = []byte("i/")
	payloadPrefix = []byte("v/")
	savedAtKey    = []byte("m/saved_at")
)

// DefaultSaveInterval 默认索引保存间隔
const DefaultSaveInterval = 10 * time.Minute

// Entry 索引条目
type Entry struct {
	PublishedAt time.Time
	TTL         time.Duration
}

// ExpiresAt 过期边界
func (e Entry) ExpiresAt() time.Time {
	return e.PublishedAt.Add(e.TTL)
}

// indexRecord 索引记录的持久化形式
type indexRecord struct {
	PublishedAt int64 `msgpack:"p"`
	TTL         int64 `msgpack:"t"`
}

// Options 存储选项
type Options struct {
	// Clock 时钟，nil 时使用真实时钟
	Clock clock.Clock

	// SaveInterval 索引自动保存间隔，<= 0 时使用 DefaultSaveInterval
	SaveInterval time.Duration
}

// ============================================================================
//                              Store
// ============================================================================

// Store 本地值存储
type Store struct {
	kv    *kv.Store
	clock clock.Clock

	mu     sync.RWMutex
	index  map[types.ID]map[types.ID]Entry
	dirty  bool
	closed bool

	saveMu       sync.Mutex
	saveInterval time.Duration

	startOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Open 打开存储并从 kvs 加载已保存的索引
func Open(kvs *kv.Store, opts Options) (*Store, error) {
	if kvs == nil {
		return nil, ErrNilKV
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultSaveInterval
	}

	s := &Store{
		kv:           kvs,
		clock:        opts.Clock,
		index:        make(map[types.ID]map[types.ID]Entry),
		saveInterval: opts.SaveInterval,
		stopCh:       make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func compoundKey(prefix []byte, key, hash types.ID) []byte {
	b := make([]byte, 0, len(prefix)+2*types.IDLength)
	b = append(b, prefix...)
	b = append(b, key[:]...)
	return append(b, hash[:]...)
}

func splitCompoundKey(prefix, k []byte) (key, hash types.ID, ok bool) {
	if !bytes.HasPrefix(k, prefix) || len(k) != len(prefix)+2*types.IDLength {
		return key, hash, false
	}
	k = k[len(prefix):]
	copy(key[:], k[:types.IDLength])
	copy(hash[:], k[types.IDLength:])
	return key, hash, true
}

// load 加载索引，丢弃缺少负载的记录与没有索引的孤立负载
func (s *Store) load() error {
	var records, dropped int
	err := s.kv.PrefixScan(indexPrefix, func(k, v []byte) bool {
		key, hash, ok := splitCompoundKey(indexPrefix, k)
		if !ok {
			dropped++
			return true
		}
		var rec indexRecord
		if err := msgpack.Unmarshal(v, &rec); err != nil {
			dropped++
			return true
		}
		s.setLocked(key, hash, Entry{
			PublishedAt: time.Unix(0, rec.PublishedAt).UTC(),
			TTL:         time.Duration(rec.TTL),
		})
		records++
		return true
	})
	if err != nil {
		return err
	}

	for key, hashes := range s.index {
		for hash := range hashes {
			has, err := s.kv.Has(compoundKey(payloadPrefix, key, hash))
			if err != nil {
				return err
			}
			if !has {
				s.deleteLocked(key, hash)
				dropped++
			}
		}
	}

	var orphans [][]byte
	err = s.kv.PrefixScan(payloadPrefix, func(k, _ []byte) bool {
		key, hash, ok := splitCompoundKey(payloadPrefix, k)
		if !ok || !s.containsLocked(key, hash) {
			orphans = append(orphans, append([]byte(nil), k...))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range orphans {
		if err := s.kv.Delete(k); err != nil {
			return err
		}
	}

	if records > 0 || dropped > 0 || len(orphans) > 0 {
		logger.Info("已加载值索引", "entries", records-dropped, "dropped", dropped, "orphans", len(orphans))
	}
	s.dirty = dropped > 0
	return nil
}

// ============================================================================
//                              写操作
// ============================================================================

// Put 持久化值负载并记录（或覆盖）索引条目
func (s *Store) Put(key, hash types.ID, value []byte, publishedAt time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.kv.Put(compoundKey(payloadPrefix, key, hash), value); err != nil {
		return err
	}
	s.setLocked(key, hash, Entry{PublishedAt: publishedAt.UTC(), TTL: ttl})
	s.dirty = true
	return nil
}

// Restamp 只更新已有条目的发布时间与 TTL，返回条目是否存在
func (s *Store) Restamp(key, hash types.ID, publishedAt time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.containsLocked(key, hash) {
		return false
	}
	s.index[key][hash] = Entry{PublishedAt: publishedAt.UTC(), TTL: ttl}
	s.dirty = true
	return true
}

// Expire 删除所有 now 晚于 publishedAt+ttl 的条目，返回删除数
func (s *Store) Expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, hashes := range s.index {
		for hash, e := range hashes {
			if !now.After(e.ExpiresAt()) {
				continue
			}
			if err := s.kv.Delete(compoundKey(payloadPrefix, key, hash)); err != nil && !engine.IsNotFound(err) {
				logger.Warn("删除过期值负载失败", "key", key.ShortString(), "error", err)
			}
			s.deleteLocked(key, hash)
			removed++
		}
	}
	if removed > 0 {
		s.dirty = true
		logger.Debug("已清理过期值", "count", removed)
	}
	return removed
}

func (s *Store) setLocked(key, hash types.ID, e Entry) {
	hashes, ok := s.index[key]
	if !ok {
		hashes = make(map[types.ID]Entry)
		s.index[key] = hashes
	}
	hashes[hash] = e
}

func (s *Store) deleteLocked(key, hash types.ID) {
	hashes := s.index[key]
	delete(hashes, hash)
	if len(hashes) == 0 {
		delete(s.index, key)
	}
}

func (s *Store) containsLocked(key, hash types.ID) bool {
	_, ok := s.index[key][hash]
	return ok
}

// ============================================================================
//                              读操作
// ============================================================================

// Contains key 下是否有任何值
func (s *Store) Contains(key types.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index[key]) > 0
}

// ContainsValue 是否存有 (key, hash)
func (s *Store) ContainsValue(key, hash types.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containsLocked(key, hash)
}

// Get 返回 key 下的所有值，顺序不定
func (s *Store) Get(key types.ID) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.index[key]
	values := make([][]byte, 0, len(hashes))
	for hash := range hashes {
		v, err := s.kv.Get(compoundKey(payloadPrefix, key, hash))
		if err != nil {
			logger.Warn("读取值负载失败", "key", key.ShortString(), "hash", hash.ShortString(), "error", err)
			continue
		}
		values = append(values, v)
	}
	return values
}

// GetValue 返回 (key, hash) 对应的值
func (s *Store) GetValue(key, hash types.ID) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.containsLocked(key, hash) {
		return nil, false
	}
	v, err := s.kv.Get(compoundKey(payloadPrefix, key, hash))
	if err != nil {
		logger.Warn("读取值负载失败", "key", key.ShortString(), "hash", hash.ShortString(), "error", err)
		return nil, false
	}
	return v, true
}

// PublicationTime 返回 (key, hash) 的发布时间
func (s *Store) PublicationTime(key, hash types.ID) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[key][hash]
	return e.PublishedAt, ok
}

// Entry 返回 (key, hash) 的索引条目
func (s *Store) Entry(key, hash types.ID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[key][hash]
	return e, ok
}

// Keys 所有 key 的快照
func (s *Store) Keys() []types.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]types.ID, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	return keys
}

// ContentHashes key 下所有内容哈希的快照
func (s *Store) ContentHashes(key types.ID) []types.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]types.ID, 0, len(s.index[key]))
	for h := range s.index[key] {
		hashes = append(hashes, h)
	}
	return hashes
}

// Len 条目总数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, hashes := range s.index {
		n += len(hashes)
	}
	return n
}

// ============================================================================
//                              索引保存
// ============================================================================

// Save 将内存索引写入 kv，并删除已不存在条目的记录
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[string]indexRecord, len(s.index))
	for key, hashes := range s.index {
		for hash, e := range hashes {
			snapshot[string(compoundKey(indexPrefix, key, hash))] = indexRecord{
				PublishedAt: e.PublishedAt.UnixNano(),
				TTL:         int64(e.TTL),
			}
		}
	}
	s.dirty = false
	s.mu.Unlock()

	existing, err := s.kv.Keys(indexPrefix)
	if err != nil {
		s.markDirty()
		return err
	}

	batch := s.kv.NewBatch()
	for _, k := range existing {
		if _, keep := snapshot[string(k)]; !keep {
			batch.Delete(k)
		}
	}
	for k, rec := range snapshot {
		if err := batch.PutMsgpack([]byte(k), rec); err != nil {
			s.markDirty()
			return err
		}
	}
	if err := batch.PutMsgpack(savedAtKey, s.clock.Now().UnixNano()); err != nil {
		s.markDirty()
		return err
	}
	ops := batch.Size()
	if err := batch.Write(); err != nil {
		s.markDirty()
		return err
	}

	logger.Debug("值索引已保存", "entries", len(snapshot), "ops", ops)
	return nil
}

func (s *Store) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// SavedAt 最近一次保存索引的时间
func (s *Store) SavedAt() (time.Time, bool) {
	var ns int64
	if err := s.kv.GetMsgpack(savedAtKey, &ns); err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns).UTC(), true
}

// Start 启动索引自动保存
func (s *Store) Start() {
	s.startOnce.Do(func() {
		ticker := s.clock.Ticker(s.saveInterval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-s.stopCh:
					return
				case <-ticker.C:
					s.mu.RLock()
					dirty := s.dirty
					s.mu.RUnlock()
					if !dirty {
						continue
					}
					if err := s.Save(); err != nil {
						logger.Warn("自动保存值索引失败", "error", err)
					}
				}
			}
		}()
	})
}

// Close 停止自动保存并保存索引
//
// 底层 kv 引擎由调用方关闭。
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	if err := s.Save(); err != nil {
		return err
	}
	return s.kv.Sync()
}
