package identity

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/dep2p/go-kad/config"
	"github.com/dep2p/go-kad/pkg/lib/log"
	"github.com/dep2p/go-kad/pkg/types"
)

var logger = log.Logger("core/identity")

// Provider 节点 ID 提供者
type Provider interface {
	// NodeID 本节点 ID，在提供者生命周期内不变
	NodeID() types.ID

	// Deterministic ID 是否由主机环境派生
	Deterministic() bool

	// Release 释放持有的资源（如主机锁）
	Release() error
}

// ============================================================================
//                              Random
// ============================================================================

type randomProvider struct {
	id types.ID
}

// NewRandom 创建随机 ID 提供者
func NewRandom() Provider {
	return &randomProvider{id: types.RandomID()}
}

// Fixed 使用给定 ID 的提供者
func Fixed(id types.ID) Provider {
	return &randomProvider{id: id}
}

func (p *randomProvider) NodeID() types.ID    { return p.id }
func (p *randomProvider) Deterministic() bool { return false }
func (p *randomProvider) Release() error      { return nil }

// ============================================================================
//                              Host
// ============================================================================

// HostOptions 主机身份选项
type HostOptions struct {
	// Fingerprint 主机指纹来源，nil 时使用 HostFingerprint
	Fingerprint func() string

	// LockDir 锁文件目录，空时使用 os.TempDir()
	LockDir string
}

type hostProvider struct {
	id            types.ID
	deterministic bool

	mu   sync.Mutex
	lock *fileLock
}

// NewHost 创建主机身份提供者
//
// 锁已被其他进程持有或无法创建时回退为随机 ID，不返回错误。
func NewHost(opts HostOptions) Provider {
	if opts.Fingerprint == nil {
		opts.Fingerprint = HostFingerprint
	}
	if opts.LockDir == "" {
		opts.LockDir = os.TempDir()
	}

	id := types.HashString(opts.Fingerprint())
	path := filepath.Join(opts.LockDir, fmt.Sprintf("kad-%s.lock", id.Hex()[:16]))

	lock, err := acquireLock(path)
	if err != nil {
		logger.Info("主机身份不可用，使用随机 ID", "lock", path, "reason", err)
		return &hostProvider{id: types.RandomID()}
	}

	logger.Debug("已持有主机身份", "id", id.ShortString(), "lock", path)
	return &hostProvider{id: id, deterministic: true, lock: lock}
}

func (p *hostProvider) NodeID() types.ID    { return p.id }
func (p *hostProvider) Deterministic() bool { return p.deterministic }

func (p *hostProvider) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lock == nil {
		return nil
	}
	err := p.lock.release()
	p.lock = nil
	return err
}

// HostFingerprint 由可执行文件、用户、主机名、操作系统与网卡 MAC 组成的指纹
func HostFingerprint() string {
	var parts []string

	if exe, err := os.Executable(); err == nil {
		parts = append(parts, exe)
	}
	if u, err := user.Current(); err == nil {
		parts = append(parts, u.Username)
	} else {
		parts = append(parts, os.Getenv("USER"))
	}
	if host, err := os.Hostname(); err == nil {
		parts = append(parts, host)
	}
	parts = append(parts, runtime.GOOS+"/"+runtime.GOARCH)

	if ifaces, err := net.Interfaces(); err == nil {
		var macs []string
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) > 0 {
				macs = append(macs, iface.HardwareAddr.String())
			}
		}
		sort.Strings(macs)
		parts = append(parts, strings.Join(macs, ","))
	}

	return strings.Join(parts, "|")
}

// ============================================================================
//                              按配置选择
// ============================================================================

// FromMode 按身份模式创建提供者
func FromMode(mode string) (Provider, error) {
	switch mode {
	case "", config.IdentityRandom:
		return NewRandom(), nil
	case config.IdentityHost:
		return NewHost(HostOptions{}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
