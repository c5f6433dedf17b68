package dht

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kad/internal/dht/protocol"
	"github.com/dep2p/go-kad/pkg/types"
)

// join 让 n 通过 seed 入网
func join(t *testing.T, n, seed *Engine) {
	t.Helper()
	ctx := context.Background()
	require.True(t, n.Bootstrap(ctx, addrOf(seed)))
	require.True(t, n.JoinNetwork(ctx))
}

func hasValue(ctx context.Context, e *Engine, key types.ID, value []byte) func() bool {
	return func() bool {
		values := e.Get(ctx, key)
		return len(values) == 1 && string(values[0]) == string(value)
	}
}

// ============================================================================
//                              端到端场景
// ============================================================================

// 单节点：写入后本地可读
func TestScenario_SingleNode(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t)

	key := types.HashString("hello")
	require.NoError(t, a.Put(ctx, key, []byte("world")))
	assert.Equal(t, [][]byte{[]byte("world")}, a.Get(ctx, key))
	assert.False(t, a.JoinNetwork(ctx), "没有其他节点时入网失败")

	t.Log("✅ 单节点写入后可读")
}

// 两节点：引导、入网、写入后双方可读
func TestScenario_TwoNodes(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t)
	b := newTestNode(t)

	join(t, b, a)
	assert.True(t, b.Table().Contains(a.ID()))

	key := types.HashString("two")
	require.NoError(t, b.Put(ctx, key, []byte("nodes")))
	assert.Equal(t, [][]byte{[]byte("nodes")}, b.Get(ctx, key))

	assert.Eventually(t, func() bool {
		return a.Store().ContainsValue(key, types.HashID([]byte("nodes")))
	}, waitFor, 10*time.Millisecond, "值被复制到引导节点")

	t.Log("✅ 两节点入网并复制值")
}

// 三节点：一个节点写入，另一个节点读取；之后入网的节点也能读到
func TestScenario_ThreeNodesAndLateJoiner(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)

	join(t, b, a)
	join(t, c, a)

	key := types.HashString("three")
	value := []byte("nodes")
	require.NoError(t, b.Put(ctx, key, value))
	assert.Eventually(t, hasValue(ctx, c, key, value), waitFor, 20*time.Millisecond)

	d := newTestNode(t)
	join(t, d, a)
	assert.Eventually(t, hasValue(ctx, d, key, value), waitFor, 20*time.Millisecond, "后入网节点通过网络读取")

	assert.Empty(t, d.Get(ctx, types.HashString("missing")))
	assert.NotNil(t, d.Get(ctx, types.HashString("missing")), "未找到时返回空列表")

	t.Log("✅ 多节点间写入与跨节点读取")
}

// 多值：同一键下的不同值互不覆盖
func TestScenario_MultipleValuesPerKey(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t)
	b := newTestNode(t)
	join(t, b, a)

	key := types.HashString("multi")
	require.NoError(t, b.Put(ctx, key, []byte("one")))
	require.NoError(t, b.Put(ctx, key, []byte("two")))

	assert.Eventually(t, func() bool { return len(a.Get(ctx, key)) == 2 }, waitFor, 20*time.Millisecond)
	assert.ElementsMatch(t, [][]byte{[]byte("one"), []byte("two")}, a.Get(ctx, key))
}

func TestEngine_PutTooLarge(t *testing.T) {
	a := newTestNode(t)
	err := a.Put(context.Background(), types.HashString("k"), make([]byte, a.Config().MaxValueSize+1))
	assert.ErrorIs(t, err, ErrValueTooLarge)

	var dhtErr *Error
	require.ErrorAs(t, err, &dhtErr)
	assert.Equal(t, "put", dhtErr.Op)
}

func TestEngine_FindNodeAndCountCloser(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	join(t, b, a)
	join(t, c, a)

	assert.Eventually(t, func() bool {
		found := c.FindNode(ctx, b.ID())
		return len(found) > 0 && found[0].ID == b.ID()
	}, waitFor, 20*time.Millisecond, "目标自身是距离最近的结果")

	assert.Eventually(t, func() bool { return c.CountCloserThan(b.ID()) >= 1 }, waitFor, 10*time.Millisecond,
		"b 自身比 c 更接近 b 的 ID")
}

// ============================================================================
//                              维护
// ============================================================================

func TestMaintain_ExpiresValues(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	a := newTestNodeWithClock(t, clk, WithValueTTL(time.Hour))

	key := types.HashString("k")
	require.NoError(t, a.Put(context.Background(), key, []byte("v")))
	assert.True(t, a.Store().Contains(key))

	clk.Add(2 * time.Hour)
	assert.Eventually(t, func() bool { return !a.Store().Contains(key) }, waitFor, 10*time.Millisecond)

	t.Log("✅ 维护循环清理过期值")
}

func TestReplicate_PushesLocalValues(t *testing.T) {
	ctx := context.Background()
	a := newTestNode(t)
	b := newTestNode(t)
	join(t, b, a)

	key := types.HashString("k")
	value := []byte("v")
	published := time.Now().Add(-time.Minute).UTC()
	require.NoError(t, a.Store().Put(key, types.HashID(value), value, published, time.Hour))

	require.NoError(t, a.replicate(ctx))
	assert.Eventually(t, func() bool {
		return b.Store().ContainsValue(key, types.HashID(value))
	}, waitFor, 10*time.Millisecond)

	pub, ok := b.Store().PublicationTime(key, types.HashID(value))
	require.True(t, ok)
	assert.True(t, pub.Equal(published), "复制保留原发布时间")
}

func TestReplicate_NoPeersIsNotError(t *testing.T) {
	a := newTestNode(t)
	key := types.HashString("k")
	require.NoError(t, a.Store().Put(key, types.HashID([]byte("v")), []byte("v"), time.Now(), time.Hour))
	assert.NoError(t, a.replicate(context.Background()))
}

func TestReplicateOne_ValueGone(t *testing.T) {
	a := newTestNode(t)
	err := a.replicateOne(context.Background(), types.HashString("k"), types.RandomID())
	assert.ErrorIs(t, err, ErrValueGone)
}

func TestMaintain_ReplicatesWhenDue(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Now())
	a := newTestNodeWithClock(t, clk)
	b := newTestNode(t)
	join(t, b, a)
	require.Eventually(t, func() bool { return a.Table().Contains(b.ID()) }, waitFor, 10*time.Millisecond)

	key := types.HashString("due")
	value := []byte("v")
	require.NoError(t, a.Store().Put(key, types.HashID(value), value, clk.Now(), 48*time.Hour))

	a.maintain(ctx)
	assert.False(t, b.Store().Contains(key), "未到复制间隔")

	clk.Add(a.Config().ReplicateInterval)
	assert.Eventually(t, func() bool { return b.Store().Contains(key) }, waitFor, 10*time.Millisecond)
}

func TestMaintain_RefreshesStaleBuckets(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	a := newTestNodeWithClock(t, clk, WithMaintenanceInterval(24*time.Hour))
	p := newFakePeer(t, types.RandomID())
	p.barrier(addrOf(a))
	require.Eventually(t, func() bool { return a.Table().Contains(p.id) }, waitFor, 10*time.Millisecond)

	a.maintain(context.Background())
	assert.Zero(t, countFindNode(p), "桶未陈旧时不刷新")

	clk.Add(a.Config().RefreshThreshold + time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.maintain(ctx)
	}()

	req := expect[*protocol.FindNode](t, p)
	_, err := a.Table().BucketIndexFor(req.Target)
	assert.NoError(t, err, "刷新目标不是本节点 ID")

	cancel()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("取消后维护未返回")
	}

	t.Log("✅ 陈旧桶触发查找刷新")
}
