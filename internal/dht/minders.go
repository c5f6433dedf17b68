package dht

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-kad/internal/dht/routing"
	"github.com/dep2p/go-kad/pkg/types"
)

// ============================================================================
//                              桶维护
// ============================================================================

func (e *Engine) bucketMinder() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case c := <-e.contacts:
			e.consider(c)
		}
	}
}

// consider 对观察到的联系人执行驱逐策略
//
//   - 已知且地址相同：移到桶尾
//   - 已知但地址变化：以新地址替换
//   - 桶未满：追加
//   - 桶已满：探测桶头，存活则保留桶头并丢弃新联系人，否则以新联系人替换
func (e *Engine) consider(c types.Contact) {
	if c.ID == e.id {
		return
	}

	if known, ok := e.table.Get(c.ID); ok && known.SameAddress(c) {
		e.table.Promote(c.ID)
		return
	}

	err := e.table.Put(c)
	if err == nil {
		logger.Debug("加入路由表", "contact", c.String())
		return
	}
	if !errors.Is(err, routing.ErrBucketFull) {
		return
	}

	blocker, ok := e.table.Blocker(c.ID)
	if !ok {
		_ = e.table.Put(c)
		return
	}
	if addr, err := blocker.AddrPort(); err == nil && e.Ping(e.ctx, addr) {
		logger.Debug("桶头存活，丢弃候选联系人", "blocker", blocker.String(), "candidate", c.String())
		return
	}

	e.table.Remove(blocker.ID)
	if err := e.table.Put(c); err == nil {
		logger.Debug("驱逐无响应联系人", "evicted", blocker.String(), "contact", c.String())
	}
}

// ============================================================================
//                              挂起请求清理
// ============================================================================

func (e *Engine) cacheMinder() {
	defer e.wg.Done()

	ticker := e.clock.Ticker(e.cfg.CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if n := e.pending.sweep(e.clock.Now().Add(-e.cfg.CacheMaxAge)); n > 0 {
				logger.Debug("清理过期挂起请求", "count", n)
			}
		}
	}
}

// ============================================================================
//                              周期维护
// ============================================================================

func (e *Engine) maintenanceLoop() {
	defer e.wg.Done()

	ticker := e.clock.Ticker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.maintain(e.ctx)
		}
	}
}

// maintain 执行一次维护：过期清理，到期时复制，刷新陈旧桶
func (e *Engine) maintain(ctx context.Context) {
	now := e.clock.Now()

	if n := e.store.Expire(now); n > 0 {
		logger.Info("已清理过期值", "count", n)
	}

	last := time.Unix(0, e.lastReplication.Load())
	if now.Sub(last) >= e.cfg.ReplicateInterval {
		if err := e.replicate(ctx); err != nil {
			logger.Warn("值复制部分失败", "failures", len(multierr.Errors(err)), "error", err)
		}
		e.lastReplication.Store(now.UnixNano())
	}

	e.refresh(ctx)
}

// replicate 将本地持有的每个值重新发布到距离其键最近的节点
//
// 单个值失败不影响其余值，全部失败合并返回。
func (e *Engine) replicate(ctx context.Context) error {
	var errs error
	count := 0
	for _, key := range e.store.Keys() {
		for _, hash := range e.store.ContentHashes(key) {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			count++
			err := e.replicateOne(ctx, key, hash)
			e.meter.Replicated(err == nil)
			if err != nil {
				logger.Warn("复制值失败", "key", key.ShortString(), "hash", hash.ShortString(), "error", err)
				errs = multierr.Append(errs, err)
			}
		}
	}
	logger.Debug("复制完成", "values", count, "failures", len(multierr.Errors(errs)))
	return errs
}

func (e *Engine) replicateOne(ctx context.Context, key, hash types.ID) error {
	value, ok := e.store.GetValue(key, hash)
	if !ok {
		return fmt.Errorf("%w: %s", ErrValueGone, key.ShortString())
	}
	publishedAt, ok := e.store.PublicationTime(key, hash)
	if !ok {
		return fmt.Errorf("%w: %s", ErrValueGone, key.ShortString())
	}
	return e.iterativeStore(ctx, key, value, publishedAt)
}

// refresh 对每个长时间未访问的桶查找一个落在其中的随机 ID
func (e *Engine) refresh(ctx context.Context) {
	if e.table.Size() == 0 {
		return
	}
	probes := e.table.StaleBucketProbes(e.cfg.RefreshThreshold)
	for _, probe := range probes {
		if ctx.Err() != nil {
			return
		}
		e.lookup(ctx, probe, false)
	}
	if len(probes) > 0 {
		logger.Debug("已刷新陈旧桶", "buckets", len(probes))
	}
}
