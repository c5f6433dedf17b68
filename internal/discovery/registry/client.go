package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dep2p/go-kad/pkg/lib/log"
)

var logger = log.Logger("discovery/registry")

// DefaultURL 默认注册中心地址
const DefaultURL = "http://localhost:5000/"

// nodesPath 列表与登记共用的路径
const nodesPath = "nodes"

// Peer 目录中的一个节点
type Peer struct {
	// ID 目录内部标识，仅用于列表展示
	ID string `json:"id,omitempty"`

	// HostAddress 节点地址
	HostAddress string `json:"hostAddress"`

	// HostPort 节点 UDP 端口
	HostPort int `json:"hostPort"`
}

// String 返回 "host:port" 形式地址
func (p Peer) String() string {
	return net.JoinHostPort(p.HostAddress, strconv.Itoa(p.HostPort))
}

// BootstrapSource 引导节点来源
type BootstrapSource interface {
	Peers(ctx context.Context) ([]Peer, error)
}

// RegistrationSink 节点登记目标
type RegistrationSink interface {
	Register(ctx context.Context, port int) error
}

// ============================================================================
//                              Client
// ============================================================================

// ClientConfig 客户端配置
type ClientConfig struct {
	// URL 注册中心根地址，空时使用 DefaultURL
	URL string

	// Timeout 单次请求超时
	Timeout time.Duration

	// MaxAttempts 最大尝试次数（含首次）
	MaxAttempts int

	// InitialInterval 首次重试前的等待时间
	InitialInterval time.Duration
}

// Client 注册中心 HTTP 客户端
type Client struct {
	nodes       string
	http        *http.Client
	maxAttempts int
	initial     time.Duration
}

var (
	_ BootstrapSource  = (*Client)(nil)
	_ RegistrationSink = (*Client)(nil)
)

// NewClient 创建客户端
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}

	return &Client{
		nodes:       base.JoinPath(nodesPath).String(),
		http:        &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		initial:     cfg.InitialInterval,
	}, nil
}

// Peers 获取引导节点列表
func (c *Client) Peers(ctx context.Context) ([]Peer, error) {
	var peers []Peer
	err := c.retry(ctx, func() error {
		peers = nil
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodes, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.do(req, &peers)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("获取引导列表", "url", c.nodes, "count", len(peers))
	return peers, nil
}

// Register 登记本节点端口，地址由服务端推断
func (c *Client) Register(ctx context.Context, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	body, err := json.Marshal(Peer{HostPort: port})
	if err != nil {
		return err
	}

	err = c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodes, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, nil)
	})
	if err != nil {
		return err
	}
	logger.Debug("已登记本节点", "url", c.nodes, "port", port)
	return nil
}

// do 执行请求；4xx 视为不可重试
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, req.Method, req.URL, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("registry: decode response: %w", err))
	}
	return nil
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Debug("注册中心请求失败，稍后重试", "error", err, "wait", wait)
	})
}
