package store

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dep2p/go-kad/internal/core/storage/engine/badger"
	"github.com/dep2p/go-kad/internal/core/storage/kv"
	"github.com/dep2p/go-kad/pkg/types"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testEngine 在临时目录打开 BadgerDB
func testEngine(t *testing.T, dir string) engine.Engine {
	t.Helper()
	eng, err := badger.New(engine.DefaultConfig(filepath.Join(dir, "kad.db")))
	require.NoError(t, err)
	return eng
}

func testStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()
	eng := testEngine(t, t.TempDir())
	t.Cleanup(func() { _ = eng.Close() })

	clk := clock.NewMock()
	clk.Set(epoch)
	s, err := Open(kv.New(eng, []byte("d/")), Options{Clock: clk})
	require.NoError(t, err)
	return s, clk
}

func sortValues(v [][]byte) [][]byte {
	sort.Slice(v, func(i, j int) bool { return string(v[i]) < string(v[j]) })
	return v
}

// ============================================================================
// 基础语义
// ============================================================================

func TestStore_MultiMap(t *testing.T) {
	s, _ := testStore(t)
	key := types.HashString("k")
	a, b := []byte("alpha"), []byte("beta")

	require.NoError(t, s.Put(key, types.HashID(a), a, epoch, time.Hour))
	require.NoError(t, s.Put(key, types.HashID(b), b, epoch, time.Hour))

	assert.True(t, s.Contains(key))
	assert.True(t, s.ContainsValue(key, types.HashID(a)))
	assert.False(t, s.ContainsValue(key, types.HashID([]byte("gamma"))))
	assert.False(t, s.Contains(types.HashString("other")))

	assert.Equal(t, [][]byte{a, b}, sortValues(s.Get(key)))
	v, ok := s.GetValue(key, types.HashID(b))
	require.True(t, ok)
	assert.Equal(t, b, v)

	assert.ElementsMatch(t, []types.ID{types.HashID(a), types.HashID(b)}, s.ContentHashes(key))
	assert.Equal(t, []types.ID{key}, s.Keys())
	assert.Equal(t, 2, s.Len())

	assert.Empty(t, s.Get(types.HashString("missing")))
	assert.NotNil(t, s.Get(types.HashString("missing")))

	t.Log("✅ 同一 key 下可并存多个值")
}

func TestStore_Restamp(t *testing.T) {
	s, _ := testStore(t)
	key, val := types.HashString("k"), []byte{1, 2, 3}
	hash := types.HashID(val)

	assert.False(t, s.Restamp(key, hash, epoch, time.Hour), "不存在的条目不受影响")
	assert.False(t, s.ContainsValue(key, hash))

	require.NoError(t, s.Put(key, hash, val, epoch, time.Hour))
	later := epoch.Add(30 * time.Minute)
	require.True(t, s.Restamp(key, hash, later, 2*time.Hour))

	ts, ok := s.PublicationTime(key, hash)
	require.True(t, ok)
	assert.Equal(t, later, ts)

	e, ok := s.Entry(key, hash)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, e.TTL)

	got, _ := s.GetValue(key, hash)
	assert.Equal(t, val, got, "Restamp 不改变值")
}

func TestStore_Expire(t *testing.T) {
	s, _ := testStore(t)
	k1, k2 := types.HashString("k1"), types.HashString("k2")
	short, long := []byte("short"), []byte("long")

	require.NoError(t, s.Put(k1, types.HashID(short), short, epoch, time.Hour))
	require.NoError(t, s.Put(k1, types.HashID(long), long, epoch, 3*time.Hour))
	require.NoError(t, s.Put(k2, types.HashID(short), short, epoch, time.Hour))

	// 恰好在边界上不删除
	assert.Zero(t, s.Expire(epoch.Add(time.Hour)))

	assert.Equal(t, 2, s.Expire(epoch.Add(time.Hour+time.Nanosecond)))
	assert.False(t, s.ContainsValue(k1, types.HashID(short)))
	assert.True(t, s.ContainsValue(k1, types.HashID(long)))
	assert.False(t, s.Contains(k2), "key 的容器为空时被移除")
	assert.Equal(t, []types.ID{k1}, s.Keys())

	_, ok := s.GetValue(k2, types.HashID(short))
	assert.False(t, ok)

	t.Log("✅ Expire 只删除 TTL 边界已过的条目")
}

func TestStore_OverwriteSameHash(t *testing.T) {
	s, _ := testStore(t)
	key, val := types.HashString("k"), []byte("v")
	hash := types.HashID(val)

	require.NoError(t, s.Put(key, hash, val, epoch, time.Hour))
	require.NoError(t, s.Put(key, hash, val, epoch.Add(time.Minute), time.Hour))

	assert.Equal(t, 1, s.Len())
	ts, _ := s.PublicationTime(key, hash)
	assert.Equal(t, epoch.Add(time.Minute), ts)
}

// ============================================================================
// 持久化
// ============================================================================

func TestStore_PersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	key, val := types.HashString("persist"), []byte("payload")
	hash := types.HashID(val)
	published := epoch.Add(123 * time.Nanosecond)

	eng := testEngine(t, dir)
	s, err := Open(kv.New(eng, []byte("d/")), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Put(key, hash, val, published, 24*time.Hour))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Put(key, hash, val, published, time.Hour), ErrClosed)
	require.NoError(t, eng.Close())

	eng = testEngine(t, dir)
	t.Cleanup(func() { _ = eng.Close() })
	reopened, err := Open(kv.New(eng, []byte("d/")), Options{})
	require.NoError(t, err)

	got, ok := reopened.GetValue(key, hash)
	require.True(t, ok)
	assert.Equal(t, val, got)
	e, ok := reopened.Entry(key, hash)
	require.True(t, ok)
	assert.True(t, published.Equal(e.PublishedAt))
	assert.Equal(t, 24*time.Hour, e.TTL)

	_, ok = reopened.SavedAt()
	assert.True(t, ok)

	t.Log("✅ 重启后索引与负载恢复")
}

func TestStore_LoadDropsInconsistentRecords(t *testing.T) {
	dir := t.TempDir()
	eng := testEngine(t, dir)
	t.Cleanup(func() { _ = eng.Close() })
	kvs := kv.New(eng, []byte("d/"))

	s, err := Open(kvs, Options{})
	require.NoError(t, err)
	kept := []byte("kept")
	key := types.HashString("k")
	require.NoError(t, s.Put(key, types.HashID(kept), kept, epoch, time.Hour))
	require.NoError(t, s.Put(key, types.HashID([]byte("lost")), []byte("lost"), epoch, time.Hour))
	require.NoError(t, s.Save())

	// 模拟负载丢失与孤立负载
	require.NoError(t, kvs.Delete(compoundKey(payloadPrefix, key, types.HashID([]byte("lost")))))
	orphan := compoundKey(payloadPrefix, types.HashString("o"), types.HashString("o"))
	require.NoError(t, kvs.Put(orphan, []byte("orphan")))

	reopened, err := Open(kvs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	assert.True(t, reopened.ContainsValue(key, types.HashID(kept)))

	has, err := kvs.Has(orphan)
	require.NoError(t, err)
	assert.False(t, has, "孤立负载被清理")
}

func TestStore_SaveRemovesStaleRecords(t *testing.T) {
	s, clk := testStore(t)
	key, val := types.HashString("k"), []byte("v")

	require.NoError(t, s.Put(key, types.HashID(val), val, clk.Now(), time.Minute))
	require.NoError(t, s.Save())
	keys, err := s.kv.Keys(indexPrefix)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	assert.Equal(t, 1, s.Expire(clk.Now().Add(time.Hour)))
	require.NoError(t, s.Save())
	keys, err = s.kv.Keys(indexPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.kv.Keys(payloadPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys, "过期时负载立即删除")
}

func TestStore_Autosave(t *testing.T) {
	eng := testEngine(t, t.TempDir())
	t.Cleanup(func() { _ = eng.Close() })

	clk := clock.NewMock()
	clk.Set(epoch)
	s, err := Open(kv.New(eng, []byte("d/")), Options{Clock: clk, SaveInterval: time.Minute})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Close() })

	val := []byte("auto")
	require.NoError(t, s.Put(types.HashString("k"), types.HashID(val), val, epoch, time.Hour))

	_, saved := s.SavedAt()
	assert.False(t, saved)

	assert.Eventually(t, func() bool {
		clk.Add(time.Minute)
		_, ok := s.SavedAt()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	t.Log("✅ 索引按间隔自动保存")
}

func TestOpen_NilKV(t *testing.T) {
	_, err := Open(nil, Options{})
	assert.ErrorIs(t, err, ErrNilKV)
}
