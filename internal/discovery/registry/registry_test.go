package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{URL: url, Timeout: time.Second, MaxAttempts: 3, InitialInterval: time.Millisecond})
	require.NoError(t, err)
	return c
}

// ============================================================================
//                              Server
// ============================================================================

func TestServer_SeedFirst(t *testing.T) {
	s := NewServer(DefaultSeed, 0)
	peers := s.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "127.0.0.1", peers[0].HostAddress)
	assert.Equal(t, 8810, peers[0].HostPort)
	assert.NotEmpty(t, peers[0].ID)
}

func TestServer_DedupeAndCap(t *testing.T) {
	s := NewServer(DefaultSeed, 3)

	assert.True(t, s.Add(Peer{HostAddress: "10.0.0.1", HostPort: 1}))
	assert.False(t, s.Add(Peer{HostAddress: "10.0.0.1", HostPort: 1}), "重复登记无操作")
	assert.True(t, s.Add(Peer{HostAddress: "10.0.0.1", HostPort: 2}))
	assert.True(t, s.Add(Peer{HostAddress: "10.0.0.2", HostPort: 1}))

	peers := s.Peers()
	require.Len(t, peers, 3)
	assert.Equal(t, DefaultSeed.HostPort, peers[0].HostPort, "种子节点始终保留")
	assert.Equal(t, "10.0.0.1:2", peers[1].String(), "最早的非种子节点被淘汰")
	assert.Equal(t, "10.0.0.2:1", peers[2].String())
	assert.NotEqual(t, peers[1].ID, peers[2].ID)

	t.Log("✅ 目录去重并保持容量上限")
}

func TestServer_HTTP(t *testing.T) {
	s := NewServer(DefaultSeed, 0)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/nodes", "application/json", strings.NewReader(`{"hostPort":9000}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	peers := s.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "127.0.0.1", peers[1].HostAddress, "地址取自请求来源")
	assert.Equal(t, 9000, peers[1].HostPort)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"BadPort", http.MethodPost, "/nodes", `{"hostPort":0}`, http.StatusBadRequest},
		{"BadBody", http.MethodPost, "/nodes", `not json`, http.StatusBadRequest},
		{"UnknownPath", http.MethodGet, "/peers", "", http.StatusNotFound},
		{"Method", http.MethodDelete, "/nodes", "", http.StatusMethodNotAllowed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	assert.Len(t, s.Peers(), 2)
}

// ============================================================================
//                              Client
// ============================================================================

func TestClient_PeersAndRegister(t *testing.T) {
	s := NewServer(DefaultSeed, 0)
	srv := httptest.NewServer(s)
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/")
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, 9100))
	peers, err := c.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "127.0.0.1:8810", peers[0].String())
	assert.Equal(t, "127.0.0.1:9100", peers[1].String())

	t.Log("✅ 客户端登记后可在列表中看到本节点")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"hostAddress":"10.1.1.1","hostPort":7000}]`))
	}))
	defer srv.Close()

	peers, err := newTestClient(t, srv.URL).Peers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Peer{{HostAddress: "10.1.1.1", HostPort: 7000}}, peers)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Peers(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Register(context.Background(), 9000)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Validation(t *testing.T) {
	_, err := NewClient(ClientConfig{URL: "ftp://example.com"})
	assert.ErrorIs(t, err, ErrInvalidURL)

	c, err := NewClient(ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/nodes", c.nodes)

	assert.ErrorIs(t, c.Register(context.Background(), 0), ErrInvalidPort)
}
