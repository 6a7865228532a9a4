package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerSecond: 1, BurstSize: 2})
	h := rl.Middleware(okHandler)
	codes := []int{}
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("GET", "/api/search?q=paris", nil)
		r.RemoteAddr = "192.0.2.10:1000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	// 其他来源不受影响
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.11:1000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Errorf("other client code = %d", w.Code)
	}
	if n := rl.Sweep(time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("Sweep left %d clients", n)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: false, RequestsPerSecond: 1, BurstSize: 1})
	h := rl.Middleware(okHandler)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		if w.Code != 200 {
			t.Fatalf("disabled limiter blocked request %d", i)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://map.example.org"})(okHandler)
	r := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	r.Header.Set("Origin", "https://map.example.org")
	r.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://map.example.org" {
		t.Errorf("allow origin = %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/api/countries", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}
}
