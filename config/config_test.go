package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.DHT.BucketSize)
	assert.Equal(t, 3, cfg.DHT.Alpha)
	assert.Equal(t, 500*time.Millisecond, cfg.DHT.RPCTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.DHT.CacheMaxAge.Duration())
	assert.Equal(t, 24*time.Hour, cfg.DHT.ValueTTL.Duration())
	assert.Equal(t, time.Hour, cfg.DHT.MaxClockSkew.Duration())
	assert.Equal(t, 10, cfg.DHT.ContactQueueSize)
	assert.Equal(t, DefaultFallbackPeer, cfg.Bootstrap.FallbackPeer)

	t.Log("✅ NewConfig 测试通过")
}

func TestDHTConfig_Validate(t *testing.T) {
	cases := map[string]func(*DHTConfig){
		"BucketSize":   func(c *DHTConfig) { c.BucketSize = 0 },
		"Alpha":        func(c *DHTConfig) { c.Alpha = -1 },
		"PollTooLong":  func(c *DHTConfig) { c.PollInterval = c.RPCTimeout + 1 },
		"ValueTTL":     func(c *DHTConfig) { c.ValueTTL = 0 },
		"Queue":        func(c *DHTConfig) { c.ContactQueueSize = 0 },
		"NegativeSkew": func(c *DHTConfig) { c.MaxClockSkew = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultDHTConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNodeConfig_Validate(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = DefaultNodeConfig()
	cfg.Identity = "fixed"
	assert.Error(t, cfg.Validate())

	cfg = DefaultNodeConfig()
	cfg.InboundRate = 0
	cfg.InboundBurst = 0
	assert.NoError(t, cfg.Validate(), "关闭限速时不要求 burst")
}

func TestBootstrapConfig_Validate(t *testing.T) {
	cfg := DefaultBootstrapConfig()
	cfg.RegistryURL = "ftp://example.com"
	assert.Error(t, cfg.Validate())

	cfg.RegistryURL = "http://127.0.0.1:8080"
	assert.NoError(t, cfg.Validate())
}

func TestLogConfig_Validate(t *testing.T) {
	assert.NoError(t, LogConfig{Level: "debug", Format: "json"}.Validate())
	assert.Error(t, LogConfig{Level: "trace"}.Validate())
	assert.Error(t, LogConfig{Format: "xml"}.Validate())
}

func TestMetricsConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultMetricsConfig().Validate())
	assert.NoError(t, MetricsConfig{Enabled: true, Addr: "localhost:9100"}.Validate())
	assert.Error(t, MetricsConfig{Enabled: true, Addr: "9100"}.Validate())
}

func TestFromJSON_PartialOverride(t *testing.T) {
	data := []byte(`{
		"node": {"port": 8810, "identity": "host"},
		"dht": {"rpc_timeout": "750ms", "alpha": 5},
		"storage": {"data_dir": "/var/lib/kad"}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8810, cfg.Node.Port)
	assert.Equal(t, IdentityHost, cfg.Node.Identity)
	assert.Equal(t, 750*time.Millisecond, cfg.DHT.RPCTimeout.Duration())
	assert.Equal(t, 5, cfg.DHT.Alpha)
	assert.Equal(t, 20, cfg.DHT.BucketSize, "未出现的字段保留默认值")
	assert.Equal(t, filepath.Join("/var/lib/kad", "kad.db"), cfg.Storage.DBPath())
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"dht": {"rpc_timeout": "soon"}}`))
	assert.Error(t, err)
}

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kad.json")

	cfg := NewConfig()
	cfg.Node.Port = 9000
	cfg.Bootstrap.Peers = []string{"10.0.0.1:8810"}
	require.NoError(t, cfg.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1h30m"`), &d))
	assert.Equal(t, 90*time.Minute, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
	assert.Equal(t, "2s", Duration(2*time.Second).String())

	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}
