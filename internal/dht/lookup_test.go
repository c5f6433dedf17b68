package dht

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kad/internal/dht/protocol"
	"github.com/dep2p/go-kad/pkg/types"
)

// idAt 返回与 target 仅在第 bit 位及以下不同的 ID
func idAt(target types.ID, bit int) types.ID {
	return target.RandomizeBeyond(bit)
}

func TestShortlist_OrderAndDedupe(t *testing.T) {
	target := types.RandomID()
	own := types.RandomID()
	far := types.NewContact(idAt(target, 150), "127.0.0.1", 1)
	mid := types.NewContact(idAt(target, 100), "127.0.0.1", 2)
	near := types.NewContact(idAt(target, 10), "127.0.0.1", 3)

	s := newShortlist(target, own)
	s.add([]types.Contact{far, near})
	s.add([]types.Contact{mid, near, types.NewContact(own, "127.0.0.1", 4)})

	batch := s.next(5)
	assert.Equal(t, []types.Contact{near, mid, far}, batch, "按距离排序、去重并排除本节点")
	assert.Empty(t, s.next(5), "已查询的候选不会再次出现")
}

func TestShortlist_RemovedNotReadded(t *testing.T) {
	target := types.RandomID()
	c := types.NewContact(idAt(target, 50), "127.0.0.1", 1)

	s := newShortlist(target, types.RandomID())
	s.add([]types.Contact{c})
	s.next(1)
	s.remove(c.ID)
	s.add([]types.Contact{c})

	assert.Empty(t, s.next(1))
	assert.Equal(t, 0, s.explored())
}

func TestShortlist_ClosestIncludesUnqueried(t *testing.T) {
	target := types.RandomID()
	a := types.NewContact(idAt(target, 10), "127.0.0.1", 1)
	b := types.NewContact(idAt(target, 20), "127.0.0.1", 2)
	c := types.NewContact(idAt(target, 30), "127.0.0.1", 3)

	s := newShortlist(target, types.RandomID())
	s.add([]types.Contact{c, a, b})
	s.next(1)

	assert.Equal(t, 1, s.explored())
	assert.Equal(t, []types.Contact{a, b, c}, s.closest(5), "结果为截断后的整个候选集")
	assert.Equal(t, []types.Contact{a, b}, s.closest(2))
}

// ============================================================================
//                              引擎级查找
// ============================================================================

// contactOf 返回指向本机端口的联系人
func contactOf(id types.ID, port int) types.Contact {
	return types.NewContact(id, "127.0.0.1", uint16(port))
}

// countFindNode 非阻塞统计对端已收到的 FindNode 请求数
func countFindNode(p *fakePeer) int {
	n := 0
	for {
		select {
		case m := <-p.msgs:
			if _, ok := m.(*protocol.FindNode); ok {
				n++
			}
		default:
			return n
		}
	}
}

func TestLookup_SeedsWithAlphaContacts(t *testing.T) {
	e := newTestNode(t)
	peers := make([]*fakePeer, 6)
	for i := range peers {
		peers[i] = newFakePeer(t, types.RandomID())
		require.NoError(t, e.Table().Put(contactOf(peers[i].id, peers[i].conn.Port())))
	}

	found := e.FindNode(context.Background(), types.RandomID())
	assert.Empty(t, found, "种子全部无应答且没有新的建议")

	queried := 0
	for _, p := range peers {
		queried += countFindNode(p)
	}
	assert.Equal(t, e.Config().Alpha, queried, "只向最近的 α 个已知联系人发起查询")

	t.Log("✅ 候选集以 α 个联系人为起点")
}

func TestLookup_SkipsUnresponsivePeer(t *testing.T) {
	e := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	silent := newFakePeer(t, types.RandomID())

	require.NoError(t, e.Table().Put(contactOf(silent.id, silent.conn.Port())))
	require.NoError(t, e.Table().Put(contactOf(b.ID(), b.Port())))
	require.NoError(t, b.Table().Put(contactOf(c.ID(), c.Port())))

	found := e.FindNode(context.Background(), c.ID())
	ids := make([]types.ID, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.ID)
	}

	assert.Equal(t, 1, countFindNode(silent), "无应答的对端确实被查询过")
	assert.NotContains(t, ids, silent.id, "超时的对端从结果中移除")
	assert.Contains(t, ids, b.ID())
	require.NotEmpty(t, ids)
	assert.Equal(t, c.ID(), ids[0], "通过 b 的建议继续查到 c")

	t.Log("✅ 单个对端超时不影响其余候选")
}
