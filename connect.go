package kad

import (
	"context"

	"github.com/dep2p/go-kad/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              引导与入网
// ════════════════════════════════════════════════════════════════════════════

// Connect 重新执行引导入网流程，返回是否入网成功
//
// 节点必须处于运行状态。
func (n *Node) Connect(ctx context.Context) bool {
	if n.State() != StateRunning {
		return false
	}
	return n.connect(ctx)
}

// connect 引导、入网并登记
func (n *Node) connect(ctx context.Context) bool {
	peers := n.bootstrapPeers(ctx)

	reached := 0
	for _, p := range peers {
		if n.Bootstrap(ctx, p) {
			reached++
		}
	}
	logger.Debug("引导完成", "candidates", len(peers), "reached", reached)

	joined := n.engine.JoinNetwork(ctx)
	n.joined.Store(joined)
	if !joined {
		logger.Warn("未能加入网络", "candidates", len(peers))
		return false
	}

	if n.opts.config.Bootstrap.Register && n.sink != nil {
		if err := n.sink.Register(ctx, n.Port()); err != nil {
			logger.Warn("登记本节点失败", "error", err)
		}
	}
	return true
}

// bootstrapPeers 合并静态节点与注册中心列表
//
// 注册中心请求失败时使用兜底节点；没有任何来源时同样使用兜底节点。
func (n *Node) bootstrapPeers(ctx context.Context) []string {
	bc := n.opts.config.Bootstrap

	seen := make(map[string]struct{})
	var peers []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		peers = append(peers, p)
	}

	for _, p := range bc.Peers {
		add(p)
	}

	switch {
	case n.source != nil:
		list, err := n.source.Peers(ctx)
		if err != nil {
			logger.Warn("获取引导列表失败，使用兜底节点", "error", err, "fallback", bc.FallbackPeer)
			add(bc.FallbackPeer)
			break
		}
		for _, p := range list {
			add(p.String())
		}
	case len(peers) == 0:
		add(bc.FallbackPeer)
	}
	return peers
}

// Bootstrap Ping 指定地址，成功时把对端写入路由表
func (n *Node) Bootstrap(ctx context.Context, addr string) bool {
	ap, err := types.ParseHostPort(addr)
	if err != nil {
		logger.Warn("引导地址无效", "addr", addr, "error", err)
		return false
	}
	if ap.Addr().IsLoopback() && int(ap.Port()) == n.Port() {
		logger.Debug("跳过本节点地址", "addr", addr)
		return false
	}
	ok := n.engine.Bootstrap(ctx, ap)
	logger.Debug("引导节点", "addr", addr, "ok", ok)
	return ok
}

// JoinNetwork 查找自身 ID 以填充路由表，返回路由表是否非空
func (n *Node) JoinNetwork(ctx context.Context) bool {
	joined := n.engine.JoinNetwork(ctx)
	n.joined.Store(joined)
	return joined
}
