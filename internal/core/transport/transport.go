package transport

import "net/netip"

//go:generate mockgen -source=transport.go -destination=mocks/mock_conn.go -package=mocks

// Conn 数据报连接
type Conn interface {
	// Receive 阻塞读取下一个数据报，关闭后返回 ErrClosed
	Receive(buf []byte) (int, netip.AddrPort, error)

	// Send 发送一个数据报
	Send(frame []byte, to netip.AddrPort) error

	// LocalAddr 本地监听地址
	LocalAddr() netip.AddrPort

	// Close 关闭连接，阻塞中的 Receive 随即返回
	Close() error
}
