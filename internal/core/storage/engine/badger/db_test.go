package badger

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEngine 创建测试用引擎
// 使用 t.TempDir() 创建临时目录，测试结束后自动清理
func testEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	e, err := New(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, e.Close())
	})
	return e
}

func TestEngine_PutGetDelete(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.Put([]byte("k"), []byte("v")))

	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := e.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.Delete([]byte("k")))

	_, err = e.Get([]byte("k"))
	assert.True(t, engine.IsNotFound(err))

	ok, err = e.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_EmptyKey(t *testing.T) {
	e := testEngine(t)

	assert.ErrorIs(t, e.Put(nil, []byte("v")), engine.ErrEmptyKey)
	_, err := e.Get(nil)
	assert.ErrorIs(t, err, engine.ErrEmptyKey)
}

func TestEngine_Closed(t *testing.T) {
	cfg := engine.DefaultConfig(filepath.Join(t.TempDir(), "closed.db"))
	e, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "重复关闭不报错")

	assert.ErrorIs(t, e.Put([]byte("k"), nil), engine.ErrClosed)
	_, err = e.Get([]byte("k"))
	assert.True(t, engine.IsClosed(err))
	assert.ErrorIs(t, e.Start(), engine.ErrClosed)
}

func TestEngine_Batch(t *testing.T) {
	e := testEngine(t)

	b := e.NewBatch()
	for i := 0; i < 10; i++ {
		b.Put([]byte(fmt.Sprintf("b/%02d", i)), []byte{byte(i)})
	}
	assert.Equal(t, 10, b.Size())
	require.NoError(t, b.Write())
	assert.Equal(t, 0, b.Size())

	b.Delete([]byte("b/03"))
	require.NoError(t, b.Write())

	_, err := e.Get([]byte("b/03"))
	assert.True(t, engine.IsNotFound(err))

	got, err := e.Get([]byte("b/09"))
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got)

	b.Cancel()
	assert.ErrorIs(t, b.Write(), engine.ErrBatchClosed)
}

func TestEngine_PrefixIterator(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.Put([]byte("a/1"), []byte("x")))
	require.NoError(t, e.Put([]byte("a/2"), []byte("y")))
	require.NoError(t, e.Put([]byte("b/1"), []byte("z")))

	iter := e.NewPrefixIterator([]byte("a/"))
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
		assert.NotNil(t, iter.Value())
	}
	require.NoError(t, iter.Error())
	assert.Equal(t, []string{"a/1", "a/2"}, keys)
}

func TestEngine_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	e, err := New(engine.DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("persist"), []byte("yes")))
	require.NoError(t, e.Close())

	e, err = New(engine.DefaultConfig(path))
	require.NoError(t, err)
	defer e.Close()

	got, err := e.Get([]byte("persist"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), got)

	t.Log("✅ 重启后数据持久化测试通过")
}

func TestEngine_Concurrent(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.Start())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := []byte(fmt.Sprintf("c/%d/%d", g, i))
				assert.NoError(t, e.Put(key, key))
				_, err := e.Get(key)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	st := e.Stats()
	assert.Equal(t, int64(400), st.NumWrites)
	assert.GreaterOrEqual(t, st.NumReads, int64(400))
}

func TestConfig_Validate(t *testing.T) {
	cfg := engine.DefaultConfig("")
	assert.ErrorIs(t, cfg.Validate(), engine.ErrInvalidConfig)

	cfg = engine.DefaultConfig("/tmp/x")
	cfg.GCDiscardRatio = 1
	assert.ErrorIs(t, cfg.Validate(), engine.ErrInvalidConfig)

	cfg.GCInterval = 0
	assert.NoError(t, cfg.Validate())
}
