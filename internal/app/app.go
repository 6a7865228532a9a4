// 包 app：按配置装配数据源、目录、缓存、内容库、搜索后端与会话表，供主入口与命令行工具共用
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boundary-map/internal/api"
	"boundary-map/internal/boundary"
	"boundary-map/internal/catalog"
	"boundary-map/internal/config"
	"boundary-map/internal/content"
	"boundary-map/internal/datasource"
	"boundary-map/internal/locate"
	"boundary-map/internal/logger"
	"boundary-map/internal/middleware"
	"boundary-map/internal/search"
	"boundary-map/internal/session"
	"boundary-map/internal/utils"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory  = "memory"
	BackendElastic = "elasticsearch"
)

// App：已装配的服务依赖
type App struct {
	Config   *config.Config
	Source   datasource.Source
	Catalog  *catalog.Catalog
	Redis    *redis.Client
	Cache    *boundary.Cache
	Content  content.Store
	Search   search.Searcher
	Backend  string
	Locator  *locate.Locator
	Sessions *session.Manager
	Limiter  *middleware.RateLimiter

	closers []func() error
}

// OpenSource：DATA_URL 非空走 HTTP，否则本地目录
func OpenSource(cfg *config.Config) datasource.Source {
	if cfg.DataURL != "" {
		return datasource.NewHTTP(cfg.DataURL, cfg.FetchTimeout)
	}
	return datasource.Dir{Root: cfg.DataDir}
}

// OpenContent：json 读取 content.json；其余驱动打开 SQL 内容库
func OpenContent(ctx context.Context, cfg *config.Config, src datasource.Source) (content.Store, func() error, error) {
	if cfg.ContentDriver == "" || cfg.ContentDriver == "json" {
		st, err := content.LoadJSON(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return nil }, nil
	}
	st, err := content.OpenSQLStore(ctx, utils.NormalizeDriver(cfg.ContentDriver), cfg.ContentDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("content %s: %w", cfg.ContentDriver, err)
	}
	return st, st.Close, nil
}

// OpenSearch：返回搜索后端与其名称
// 约束：Elasticsearch 客户端构建失败时回退内存索引
func OpenSearch(ctx context.Context, cfg *config.Config, src datasource.Source) (search.Searcher, string, error) {
	if cfg.SearchBackend == BackendElastic {
		client, err := search.NewESClient(cfg.ESURL)
		if err == nil {
			return search.NewESIndex(client, cfg.ESIndex), BackendElastic, nil
		}
		logger.L().Warn("search_es_fallback", "url", cfg.ESURL, "error", err)
	}
	recs, err := search.Load(ctx, src)
	if err != nil {
		return nil, "", err
	}
	logger.L().Info("search_index_loaded", "records", len(recs))
	return search.NewIndex(recs), BackendMemory, nil
}

// Build：按配置装配全部依赖；目录缺失或内容库打不开时返回错误
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	l := logger.L()
	a := &App{Config: cfg, Source: OpenSource(cfg)}
	l.Info("data_source", "source", a.Source.String())

	cat, err := catalog.Load(ctx, a.Source)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.Catalog = cat
	l.Info("catalog_loaded", "countries", cat.Len())

	var fetcher boundary.Fetcher = boundary.SourceFetcher{Src: a.Source}
	if cfg.RedisEnabled {
		a.Redis = utils.OpenRedisFromEnv()
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		fetcher = boundary.NewRedisFetcher(fetcher, a.Redis, cfg.RedisTTL)
		a.closers = append(a.closers, a.Redis.Close)
	} else {
		l.Info("redis_disabled")
	}
	a.Cache = boundary.NewCache(fetcher, cfg.FetchTimeout)

	store, closeStore, err := OpenContent(ctx, cfg, a.Source)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Content = store
	a.closers = append(a.closers, closeStore)

	if a.Search, a.Backend, err = OpenSearch(ctx, cfg, a.Source); err != nil {
		a.Close()
		return nil, fmt.Errorf("load search: %w", err)
	}

	if cfg.GeoIPPath != "" {
		if loc, err := locate.Open(cfg.GeoIPPath, cat); err == nil {
			a.Locator = loc
			a.closers = append(a.closers, loc.Close)
			l.Info("geoip_ready", "path", cfg.GeoIPPath)
		} else {
			l.Error("geoip_open_error", "err", err)
		}
	}

	a.Sessions = session.NewManager(session.Deps{Catalog: cat, Data: a.Cache, Content: store, Zoom: cfg.NavigateZoom}, cfg.SessionCap, cfg.SessionTTL)
	a.Limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Enabled:           cfg.RateLimitEnabled,
		TrustProxy:        cfg.TrustProxy,
	})
	return a, nil
}

// Handler：API 挂载于 API_BASE，其余路径为前端静态文件
func (a *App) Handler() http.Handler {
	base := "/" + strings.Trim(a.Config.APIBase, "/")
	apiMux := api.BuildRoutes(&api.Server{
		Catalog:    a.Catalog,
		Sessions:   a.Sessions,
		Search:     a.Search,
		Backend:    a.Backend,
		Limit:      a.Config.SearchLimit,
		Redis:      a.Redis,
		CacheTTL:   a.Config.RedisTTL,
		Locator:    a.Locator,
		TrustProxy: a.Config.TrustProxy,
	})
	mux := http.NewServeMux()
	mux.Handle(base+"/", http.StripPrefix(base, a.Limiter.Middleware(apiMux)))
	// 向前端暴露 API 基础路径
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + base + "'\n"))
	})
	mux.Handle("/", http.FileServer(http.Dir(a.Config.UIDir)))

	var h http.Handler = mux
	h = middleware.CORS(a.Config.CORSOrigins)(h)
	return logger.AccessMiddleware(logger.L())(h)
}

// SweepLoop：定期清理闲置限流桶，ctx 结束时退出
func (a *App) SweepLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n := a.Limiter.Sweep(now)
			logger.L().Debug("rate_limit_sweep", "clients", n)
		}
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("close_error", "err", err)
		}
	}
	a.closers = nil
}
