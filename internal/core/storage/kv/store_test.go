package kv

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/dep2p/go-kad/internal/core/storage/engine/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore 创建测试用 Store
func testStore(t *testing.T, prefix string) (*Store, engine.Engine) {
	t.Helper()

	eng, err := badger.New(engine.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, eng.Close())
	})

	return New(eng, []byte(prefix)), eng
}

func TestStore_PrefixIsolation(t *testing.T) {
	s, eng := testStore(t, "d/")

	require.NoError(t, s.Put([]byte("v/1"), []byte("payload")))

	raw, err := eng.Get([]byte("d/v/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), raw)

	other := New(eng, []byte("x/"))
	_, err = other.Get([]byte("v/1"))
	assert.True(t, engine.IsNotFound(err))

	ok, err := s.Has([]byte("v/1"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete([]byte("v/1")))
	ok, err = s.Has([]byte("v/1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

type record struct {
	Name  string
	Count int
}

func TestStore_Msgpack(t *testing.T) {
	s, _ := testStore(t, "m/")

	require.NoError(t, s.PutMsgpack([]byte("mp"), record{Name: "b", Count: 2}))
	var m record
	require.NoError(t, s.GetMsgpack([]byte("mp"), &m))
	assert.Equal(t, record{Name: "b", Count: 2}, m)

	err := s.GetMsgpack([]byte("missing"), &m)
	assert.True(t, engine.IsNotFound(err))
}

func TestStore_BatchAndPrefixScan(t *testing.T) {
	s, _ := testStore(t, "d/")

	b := s.NewBatch()
	for i := 0; i < 5; i++ {
		b.Put([]byte(fmt.Sprintf("i/%d", i)), []byte{byte(i)})
	}
	require.NoError(t, b.PutMsgpack([]byte("m/meta"), record{Name: "meta"}))
	assert.Equal(t, 6, b.Size())
	require.NoError(t, b.Write())

	keys, err := s.Keys([]byte("i/"))
	require.NoError(t, err)
	assert.Len(t, keys, 5)
	assert.Equal(t, []byte("i/0"), keys[0], "返回的键已去除 Store 前缀")

	var seen int
	require.NoError(t, s.PrefixScan([]byte("i/"), func(_, _ []byte) bool {
		seen++
		return seen < 2
	}))
	assert.Equal(t, 2, seen, "回调返回 false 时停止")

	del := s.NewBatch()
	for _, k := range keys {
		del.Delete(k)
	}
	require.NoError(t, del.Write())

	keys, err = s.Keys([]byte("i/"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.Keys([]byte("m/"))
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	assert.NoError(t, s.Sync())
}
