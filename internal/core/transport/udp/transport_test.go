package udp

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/core/transport"
)

func listen(t *testing.T, cfg Config) *Transport {
	t.Helper()
	tr, err := Listen(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func loopback(tr *Transport) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(tr.Port()))
}

type datagram struct {
	data []byte
	from netip.AddrPort
	err  error
}

func receiveAsync(tr *Transport) <-chan datagram {
	ch := make(chan datagram, 1)
	go func() {
		buf := make([]byte, MaxDatagramSize)
		n, from, err := tr.Receive(buf)
		ch <- datagram{data: append([]byte(nil), buf[:n]...), from: from, err: err}
	}()
	return ch
}

func TestTransport_SendReceive(t *testing.T) {
	a := listen(t, Config{})
	b := listen(t, Config{})
	assert.NotZero(t, a.Port())

	ch := receiveAsync(b)
	require.NoError(t, a.Send([]byte("hello"), loopback(b)))

	select {
	case d := <-ch:
		require.NoError(t, d.err)
		assert.Equal(t, []byte("hello"), d.data)
		assert.True(t, d.from.Addr().Is4(), "IPv4 映射地址被还原")
		assert.Equal(t, uint16(a.Port()), d.from.Port())
	case <-time.After(2 * time.Second):
		t.Fatal("未收到数据报")
	}

	t.Log("✅ UDP 收发正常")
}

func TestTransport_CloseUnblocksReceive(t *testing.T) {
	tr := listen(t, Config{})
	ch := receiveAsync(tr)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "重复关闭无副作用")

	select {
	case d := <-ch:
		assert.ErrorIs(t, d.err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close 后 Receive 未返回")
	}

	assert.ErrorIs(t, tr.Send([]byte("x"), loopback(tr)), transport.ErrClosed)
}

func TestTransport_FrameTooLarge(t *testing.T) {
	tr := listen(t, Config{})
	err := tr.Send(make([]byte, MaxDatagramSize+1), loopback(tr))
	assert.ErrorIs(t, err, transport.ErrFrameTooLarge)
}

func TestTransport_InboundRateLimit(t *testing.T) {
	sender := listen(t, Config{})
	recv := listen(t, Config{InboundRate: 0.001, InboundBurst: 2})

	for i := 0; i < 5; i++ {
		require.NoError(t, sender.Send([]byte{byte(i)}, loopback(recv)))
	}
	buf := make([]byte, 16)
	for i := 0; i < 2; i++ {
		n, _, err := recv.Receive(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, buf[:n])
	}

	require.NoError(t, recv.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := recv.Receive(buf)
	assert.Error(t, err, "剩余数据报全部被丢弃，读取超时")
	assert.Equal(t, uint64(3), recv.Dropped())

	t.Log("✅ 超出突发上限的数据报被丢弃")
}

func TestTransport_InvalidPort(t *testing.T) {
	_, err := Listen(Config{Port: 70000})
	assert.Error(t, err)
}

func TestModule_ProvidesConn(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Node.Port = 0

	var conn transport.Conn
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&conn),
	)
	app.RequireStart()
	require.NotNil(t, conn)
	assert.NotZero(t, conn.LocalAddr().Port())
	require.NoError(t, conn.Close())
	app.RequireStop()
}
