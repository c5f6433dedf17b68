package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/pkg/types"
)

func fixedFingerprint() string { return "test-host|alice|linux/amd64" }

func TestNewRandom(t *testing.T) {
	a, b := NewRandom(), NewRandom()
	assert.NotEqual(t, a.NodeID(), b.NodeID())
	assert.False(t, a.Deterministic())
	assert.NoError(t, a.Release())

	id := types.RandomID()
	assert.Equal(t, id, Fixed(id).NodeID())
}

func TestNewHost_DeterministicAndExclusive(t *testing.T) {
	dir := t.TempDir()
	opts := HostOptions{Fingerprint: fixedFingerprint, LockDir: dir}

	first := NewHost(opts)
	require.True(t, first.Deterministic())
	assert.Equal(t, types.HashString(fixedFingerprint()), first.NodeID())

	second := NewHost(opts)
	assert.False(t, second.Deterministic(), "锁已被持有时回退为随机 ID")
	assert.NotEqual(t, first.NodeID(), second.NodeID())

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "重复释放无副作用")

	third := NewHost(opts)
	assert.True(t, third.Deterministic(), "释放后可重新获得")
	assert.Equal(t, first.NodeID(), third.NodeID())
	require.NoError(t, third.Release())

	t.Log("✅ 主机身份同一时刻只有一个持有者")
}

func TestNewHost_UnwritableLockDir(t *testing.T) {
	p := NewHost(HostOptions{Fingerprint: fixedFingerprint, LockDir: "/nonexistent/kad/lock/dir"})
	assert.False(t, p.Deterministic())
	assert.False(t, p.NodeID().IsZero())
}

func TestHostFingerprint_Stable(t *testing.T) {
	assert.Equal(t, HostFingerprint(), HostFingerprint())
	assert.NotEmpty(t, HostFingerprint())
}

func TestFromMode(t *testing.T) {
	p, err := FromMode(config.IdentityRandom)
	require.NoError(t, err)
	assert.False(t, p.Deterministic())

	_, err = FromMode("fixed")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestModule_ProvidesProvider(t *testing.T) {
	var p Provider
	app := fxtest.New(t,
		Module(),
		fx.Populate(&p),
	)
	app.RequireStart()
	require.NotNil(t, p)
	assert.False(t, p.NodeID().IsZero())
	app.RequireStop()
}
