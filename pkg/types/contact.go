package types

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ============================================================================
//                              Contact - 联系人
// ============================================================================

// Contact 远端节点的 ID 与网络地址
//
// 值类型，构造后不可变。相等性只看 ID。
type Contact struct {
	// ID 节点标识
	ID ID

	// Address 主机地址（IP 字面量或主机名）
	Address string

	// Port UDP 端口
	Port uint16
}

// NewContact 创建联系人
func NewContact(id ID, address string, port uint16) Contact {
	return Contact{ID: id, Address: address, Port: port}
}

// ContactFromAddrPort 从传输层观察到的源地址创建联系人
func ContactFromAddrPort(id ID, ap netip.AddrPort) Contact {
	return Contact{
		ID:      id,
		Address: ap.Addr().Unmap().String(),
		Port:    ap.Port(),
	}
}

// Equal 按 ID 判等
func (c Contact) Equal(other Contact) bool {
	return c.ID == other.ID
}

// SameAddress 判断两个联系人地址是否一致
func (c Contact) SameAddress(other Contact) bool {
	return c.Address == other.Address && c.Port == other.Port
}

// HostPort 返回 "host:port" 形式地址
func (c Contact) HostPort() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

// AddrPort 解析为 netip.AddrPort
//
// 地址必须是 IP 字面量，主机名需先由调用方解析。
func (c Contact) AddrPort() (netip.AddrPort, error) {
	if c.Port == 0 {
		return netip.AddrPort{}, ErrInvalidPort
	}
	addr, err := netip.ParseAddr(c.Address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %q", ErrInvalidAddress, c.Address)
	}
	return netip.AddrPortFrom(addr.Unmap(), c.Port), nil
}

// String 返回调试用表示
func (c Contact) String() string {
	return c.ID.ShortString() + "@" + c.HostPort()
}

// ParseHostPort 解析 "host:port" 字符串，主机名会被解析为 IP
func ParseHostPort(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	ap := udpAddr.AddrPort()
	if ap.Port() == 0 {
		return netip.AddrPort{}, ErrInvalidPort
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
