package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kad/config"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 20, c.BucketSize)
	assert.Equal(t, 3, c.Alpha)
	assert.Equal(t, 500*time.Millisecond, c.RPCTimeout)
	assert.Equal(t, 30*time.Second, c.CacheMaxAge)
	assert.Equal(t, time.Hour, c.MaxClockSkew)
	assert.Equal(t, 10, c.ContactQueueSize)
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]ConfigOption{
		"BucketSize": WithBucketSize(0),
		"Alpha":      WithAlpha(-1),
		"RPCTimeout": WithRPCTimeout(0),
		"PollAboveTimeout": func(c *Config) {
			c.PollInterval = time.Second
			c.RPCTimeout = time.Millisecond
		},
		"Maintenance": WithMaintenanceInterval(0),
		"Replicate":   WithReplicateInterval(0),
		"TTL":         WithValueTTL(0),
		"Skew":        WithMaxClockSkew(-time.Second),
		"Queue":       func(c *Config) { c.ContactQueueSize = 0 },
		"Capacity":    func(c *Config) { c.CacheCapacity = 0 },
		"ValueSize":   func(c *Config) { c.MaxValueSize = 0 },
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, DefaultConfig().Apply(opt).Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigFromUnified(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))

	u := config.NewConfig()
	u.DHT.BucketSize = 8
	u.DHT.Alpha = 2
	u.DHT.RPCTimeout = config.Duration(time.Second)
	u.DHT.ValueTTL = config.Duration(2 * time.Hour)

	c := ConfigFromUnified(u)
	assert.Equal(t, 8, c.BucketSize)
	assert.Equal(t, 2, c.Alpha)
	assert.Equal(t, time.Second, c.RPCTimeout)
	assert.Equal(t, 2*time.Hour, c.ValueTTL)
	assert.Equal(t, DefaultConfig().CacheCapacity, c.CacheCapacity)
	assert.NoError(t, c.Validate())
}

func TestError_Unwrap(t *testing.T) {
	err := NewError("put", ErrValueTooLarge, "70000 bytes")
	assert.ErrorIs(t, err, ErrValueTooLarge)
	assert.Equal(t, "dht put: 70000 bytes: dht: value too large", err.Error())
	assert.Equal(t, "dht get: dht: engine is closed", NewError("get", ErrClosed, "").Error())
}
