package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	BoundaryFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boundary_fetch_total",
		Help: "Boundary dataset retrievals by result",
	}, []string{"result"})
	BoundaryFetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "boundary_fetch_duration_ms",
		Help:    "Boundary dataset retrieval duration in milliseconds",
		Buckets: msBuckets,
	})
	BoundaryCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boundary_cache_hits_total",
		Help: "In-process boundary cache hits",
	})
	BoundaryCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boundary_cache_misses_total",
		Help: "In-process boundary cache misses",
	})
	BoundaryCacheShared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boundary_cache_shared_total",
		Help: "Requests that joined an in-flight boundary retrieval",
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boundary_redis_hits_total",
		Help: "Redis raw dataset cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boundary_redis_misses_total",
		Help: "Redis raw dataset cache misses",
	})
	LayerActivationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_activations_total",
		Help: "Level activation attempts by result (ok, noop, failed, stale)",
	}, []string{"result"})
	LayerDeactivationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "layer_deactivations_total",
		Help: "Level deactivations that removed draw layers",
	})
	CountrySelectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "country_selections_total",
		Help: "Country selections by result",
	}, []string{"result"})
	FeatureClicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feature_clicks_total",
		Help: "Map clicks by resolution result (hit, miss)",
	}, []string{"result"})
	ContentLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "content_lookups_total",
		Help: "Content lookups by result (found, missing, error)",
	}, []string{"result"})
	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_requests_total",
		Help: "Search requests by backend",
	}, []string{"backend"})
	SearchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "search_duration_ms",
		Help:    "Search duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"backend"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Live map sessions",
	})
)

func init() {
	prometheus.MustRegister(
		BoundaryFetchTotal,
		BoundaryFetchDurationMs,
		BoundaryCacheHitsTotal,
		BoundaryCacheMissesTotal,
		BoundaryCacheShared,
		RedisHitsTotal,
		RedisMissesTotal,
		LayerActivationsTotal,
		LayerDeactivationsTotal,
		CountrySelectionsTotal,
		FeatureClicksTotal,
		ContentLookupsTotal,
		SearchRequestsTotal,
		SearchDurationMs,
		SessionsActive,
	)
}

// 文档注释：返回 Prometheus 指标处理器，由主入口挂载到 API_BASE/metrics
func Handler() http.Handler { return promhttp.Handler() }
