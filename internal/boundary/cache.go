package boundary

import (
	"context"
	"errors"
	"sync"
	"time"

	"boundary-map/internal/logger"
	"boundary-map/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// 文档注释：进程内数据集缓存（只增不减）
// 背景：同一 (国家, 层级) 在进程生命周期内只获取一次，所有会话共享同一 *Dataset。
// 约束：并发请求同一键时合并为一次获取；失败不缓存，下次请求重新获取；
// 请求方 ctx 结束时可放弃等待，共享获取在独立超时内继续完成并写入缓存。
type Cache struct {
	fetcher Fetcher
	timeout time.Duration

	mu   sync.RWMutex
	data map[Key]*Dataset
	sf   singleflight.Group
}

func NewCache(f Fetcher, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Cache{fetcher: f, timeout: timeout, data: make(map[Key]*Dataset)}
}

// Peek：仅查缓存
func (c *Cache) Peek(key Key) (*Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ds, ok := c.data[key]
	return ds, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Get：命中直接返回，否则获取并解析；失败返回 *FetchError
func (c *Cache) Get(ctx context.Context, key Key, path string) (*Dataset, error) {
	if ds, ok := c.Peek(key); ok {
		metrics.BoundaryCacheHitsTotal.Inc()
		return ds, nil
	}
	metrics.BoundaryCacheMissesTotal.Inc()
	ch := c.sf.DoChan(key.String(), func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), key, path)
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{Key: key, Path: path, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			metrics.BoundaryCacheShared.Inc()
		}
		if res.Err != nil {
			var fe *FetchError
			if errors.As(res.Err, &fe) {
				return nil, fe
			}
			return nil, &FetchError{Key: key, Path: path, Err: res.Err}
		}
		return res.Val.(*Dataset), nil
	}
}

func (c *Cache) load(ctx context.Context, key Key, path string) (*Dataset, error) {
	if ds, ok := c.Peek(key); ok {
		return ds, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	b, err := c.fetcher.Fetch(ctx, path)
	metrics.BoundaryFetchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.BoundaryFetchTotal.WithLabelValues("error").Inc()
		logger.L().Warn("boundary_fetch_fail", "key", key.String(), "path", path, "error", err)
		return nil, &FetchError{Key: key, Path: path, Err: err}
	}
	ds, err := Parse(key, b)
	if err != nil {
		metrics.BoundaryFetchTotal.WithLabelValues("parse_error").Inc()
		logger.L().Warn("boundary_parse_fail", "key", key.String(), "path", path, "error", err)
		return nil, &FetchError{Key: key, Path: path, Err: err}
	}
	c.mu.Lock()
	if prev, ok := c.data[key]; ok {
		ds = prev
	} else {
		c.data[key] = ds
	}
	c.mu.Unlock()
	metrics.BoundaryFetchTotal.WithLabelValues("ok").Inc()
	logger.L().Debug("boundary_fetch_ok", "key", key.String(), "features", len(ds.Features), "bytes", ds.Size, "ms", time.Since(start).Milliseconds())
	return ds, nil
}
