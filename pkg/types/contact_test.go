package types

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContact_Equal(t *testing.T) {
	id := RandomID()
	a := NewContact(id, "10.0.0.1", 8810)
	b := NewContact(id, "10.0.0.2", 9000)
	c := NewContact(RandomID(), "10.0.0.1", 8810)

	assert.True(t, a.Equal(b), "相等性只看 ID")
	assert.False(t, a.SameAddress(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.SameAddress(c))
}

func TestContactFromAddrPort(t *testing.T) {
	id := RandomID()
	mapped := netip.MustParseAddrPort("[::ffff:127.0.0.1]:4000")

	c := ContactFromAddrPort(id, mapped)
	assert.Equal(t, "127.0.0.1", c.Address)
	assert.Equal(t, uint16(4000), c.Port)
	assert.Equal(t, "127.0.0.1:4000", c.HostPort())

	ap, err := c.AddrPort()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:4000"), ap)
}

func TestContact_AddrPort_Invalid(t *testing.T) {
	_, err := NewContact(RandomID(), "not-an-ip", 1).AddrPort()
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewContact(RandomID(), "127.0.0.1", 0).AddrPort()
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestParseHostPort(t *testing.T) {
	ap, err := ParseHostPort("127.0.0.1:8810")
	require.NoError(t, err)
	assert.Equal(t, uint16(8810), ap.Port())

	ap, err = ParseHostPort("[::1]:9000")
	require.NoError(t, err)
	assert.True(t, ap.Addr().Is6())

	_, err = ParseHostPort("127.0.0.1")
	assert.Error(t, err)
}
