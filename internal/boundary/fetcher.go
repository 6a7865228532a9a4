package boundary

import (
	"context"
	"errors"
	"time"

	"boundary-map/internal/datasource"
	"boundary-map/internal/logger"
	"boundary-map/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Fetcher：按相对路径读取原始 GeoJSON 字节
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FetcherFunc：函数适配
type FetcherFunc func(ctx context.Context, path string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, path string) ([]byte, error) { return f(ctx, path) }

// SourceFetcher：直接读数据源
type SourceFetcher struct {
	Src datasource.Source
}

func (s SourceFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	return datasource.ReadAll(ctx, s.Src, path)
}

// 文档注释：Redis 原始字节缓存（多实例共享）
// 背景：远端桶读取较慢，多实例部署时以 Redis 共享已下载的文件。
// 约束：Redis 故障不影响主流程，读失败按未命中处理，写失败仅记录日志；Client 为空时直通。
type RedisFetcher struct {
	Next   Fetcher
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisFetcher(next Fetcher, c *redis.Client, ttl time.Duration) *RedisFetcher {
	return &RedisFetcher{Next: next, Client: c, TTL: ttl, Prefix: "boundary:raw:"}
}

func (r *RedisFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if r.Client == nil {
		return r.Next.Fetch(ctx, path)
	}
	key := r.Prefix + path
	b, err := r.Client.Get(ctx, key).Bytes()
	if err == nil && len(b) > 0 {
		metrics.RedisHitsTotal.Inc()
		return b, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.L().Warn("boundary_redis_get_fail", "path", path, "error", err)
	}
	metrics.RedisMissesTotal.Inc()
	b, err = r.Next.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := r.Client.Set(ctx, key, b, r.TTL).Err(); err != nil {
		logger.L().Warn("boundary_redis_set_fail", "path", path, "error", err)
	}
	return b, nil
}
