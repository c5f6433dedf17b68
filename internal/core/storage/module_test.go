package storage

import (
	"testing"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/internal/core/storage/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModule_Lifecycle(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()

	var eng engine.Engine
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&eng),
	)
	app.RequireStart()

	require.NotNil(t, eng)
	require.NoError(t, eng.Put([]byte("k"), []byte("v")))

	app.RequireStop()

	err := eng.Put([]byte("k"), []byte("v"))
	assert.True(t, engine.IsClosed(err), "OnStop 关闭引擎")
}

func TestConfigFromUnified(t *testing.T) {
	c := ConfigFromUnified(nil)
	assert.Equal(t, DefaultConfig(), c)

	u := config.NewConfig()
	u.Storage.DataDir = "/srv/kad"
	u.Storage.SyncWrites = true
	c = ConfigFromUnified(u)
	assert.Equal(t, "/srv/kad/kad.db", c.Path)
	assert.True(t, c.SyncWrites)
	assert.Equal(t, c.Path, c.ToEngineConfig().Path)

	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidConfig)
}

func TestNewEngine_BadPath(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}
