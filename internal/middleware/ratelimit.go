// 包 middleware：HTTP 入口中间件（限流、CORS）
package middleware

import (
	"net/http"
	"sync"
	"time"

	"boundary-map/internal/locate"
	"boundary-map/internal/logger"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	Enabled           bool
	TrustProxy        bool
}

// 文档注释：按访问者 IP 的令牌桶限流
// 背景：会话接口每次点击、悬停都会请求，需限制单个来源的速率，保护边界获取与内容库。
// 约束：超限直接返回 429，不排队；闲置（桶已满）的客户端由 Sweep 清理。
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 40
	}
	return &RateLimiter{cfg: cfg, clients: make(map[string]*rate.Limiter)}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.clients[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.BurstSize)
		rl.clients[ip] = l
	}
	return l
}

// Sweep：移除桶已回满的客户端，返回剩余数量
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.clients {
		if l.TokensAt(now) >= float64(rl.cfg.BurstSize) {
			delete(rl.clients, ip)
		}
	}
	return len(rl.clients)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := locate.ClientIP(r, rl.cfg.TrustProxy)
		if !rl.limiter(ip).Allow() {
			logger.L().Warn("rate_limit_exceeded", "client_ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
