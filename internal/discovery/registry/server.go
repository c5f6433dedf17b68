package registry

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxPeers 目录最多保留的节点数
const DefaultMaxPeers = 10

// DefaultSeed 目录首项的种子节点
var DefaultSeed = Peer{HostAddress: "127.0.0.1", HostPort: 8810}

// Server 节点目录服务
//
// 首项为种子节点且永不淘汰；超过容量时淘汰最早登记的非种子节点。
type Server struct {
	limit int

	mu    sync.RWMutex
	peers []Peer
}

var _ http.Handler = (*Server)(nil)

// NewServer 创建目录服务，limit <= 1 时使用 DefaultMaxPeers
func NewServer(seed Peer, limit int) *Server {
	if limit <= 1 {
		limit = DefaultMaxPeers
	}
	seed.ID = uuid.NewString()
	return &Server{limit: limit, peers: []Peer{seed}}
}

// Peers 当前目录快照
func (s *Server) Peers() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Peer(nil), s.peers...)
}

// Add 登记节点，已存在相同地址与端口时无操作，返回是否新增
func (s *Server) Add(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.peers {
		if existing.HostAddress == p.HostAddress && existing.HostPort == p.HostPort {
			return false
		}
	}
	p.ID = uuid.NewString()
	s.peers = append(s.peers, p)
	if len(s.peers) > s.limit {
		s.peers = append(s.peers[:1], s.peers[2:]...)
	}
	return true
}

// ServeHTTP 处理 /nodes 的 GET 与 POST
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.Trim(r.URL.Path, "/") != nodesPath {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Peers()); err != nil {
			logger.Debug("写入目录响应失败", "error", err)
		}
	case http.MethodPost:
		s.handleRegister(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body Peer
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.HostPort <= 0 || body.HostPort > 65535 {
		http.Error(w, ErrInvalidPort.Error(), http.StatusBadRequest)
		return
	}

	addr, ok := remoteAddr(r)
	if !ok {
		http.Error(w, "unknown remote address", http.StatusBadRequest)
		return
	}

	p := Peer{HostAddress: addr, HostPort: body.HostPort}
	if s.Add(p) {
		logger.Info("登记节点", "peer", p.String())
	}
	w.WriteHeader(http.StatusOK)
}

// remoteAddr 从连接来源推断节点地址
func remoteAddr(r *http.Request) (string, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
