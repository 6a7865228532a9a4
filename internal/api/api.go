// 包 api：集中注册 HTTP API 路由，主入口挂载到 API_BASE 前缀
package api

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"boundary-map/internal/boundary"
	"boundary-map/internal/catalog"
	"boundary-map/internal/layers"
	"boundary-map/internal/locate"
	"boundary-map/internal/logger"
	"boundary-map/internal/metrics"
	"boundary-map/internal/search"
	"boundary-map/internal/session"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

// Server：路由依赖；Redis、Locator 可为空
type Server struct {
	Catalog    *catalog.Catalog
	Sessions   *session.Manager
	Search     search.Searcher
	Backend    string
	Limit      int
	Redis      *redis.Client
	CacheTTL   time.Duration
	Locator    *locate.Locator
	TrustProxy bool
}

// BuildRoutes：独立 ServeMux，便于主入口以 StripPrefix 挂载
func BuildRoutes(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "countries": s.Catalog.Len(), "sessions": s.Sessions.Len()})
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /countries", s.countries)
	mux.HandleFunc("GET /countries/{iso}", s.country)
	mux.HandleFunc("GET /search", s.search)
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("GET /sessions/{id}", s.withSession(s.getSession))
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/country", s.withSession(s.selectCountry))
	mux.HandleFunc("PUT /sessions/{id}/levels/{level}", s.withSession(s.setLevel))
	mux.HandleFunc("POST /sessions/{id}/click", s.withSession(s.click))
	mux.HandleFunc("POST /sessions/{id}/hover", s.withSession(s.hover))
	mux.HandleFunc("POST /sessions/{id}/navigate", s.withSession(s.navigate))
	mux.HandleFunc("GET /sessions/{id}/sources/{source}", s.withSession(s.source))
	return mux
}

type countryView struct {
	ISO         string      `json:"iso"`
	Name        string      `json:"name"`
	Continent   string      `json:"continent,omitempty"`
	Disputed    bool        `json:"disputed"`
	DefaultView viewJSON    `json:"defaultView"`
	Levels      []levelView `json:"levels"`
}

type viewJSON struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

type levelView struct {
	Code string `json:"code"`
	Rank int    `json:"rank"`
	Term string `json:"term"`
}

func (s *Server) countries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.Countries())
}

func (s *Server) country(w http.ResponseWriter, r *http.Request) {
	c, err := s.Catalog.Country(r.PathValue("iso"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := countryView{ISO: c.ISO, Name: c.Name, Continent: c.Continent, Disputed: c.Disputed,
		DefaultView: viewJSON{Center: c.DefaultView.Center, Zoom: c.DefaultView.Zoom}, Levels: []levelView{}}
	for _, l := range c.Levels {
		out.Levels = append(out.Levels, levelView{Code: l.Code, Rank: l.Rank, Term: l.Term})
	}
	writeJSON(w, http.StatusOK, out)
}

// search：Redis 可用时缓存结果；缓存键含后端、条数与小写查询
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	k := s.Limit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		k = v
	}
	if k <= 0 {
		k = search.DefaultLimit
	}
	key := searchCacheKey(s.Backend, k, q)
	if s.Redis != nil {
		if b, err := s.Redis.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.Header().Set("x-cache", "hit")
			_, _ = w.Write(b)
			return
		}
	}
	recs, err := s.Search.Search(ctx, q, k)
	if err != nil {
		logger.L().Warn("search_fail", "q", q, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "search unavailable"})
		return
	}
	body := map[string]any{"query": q, "results": recs}
	if s.Redis != nil {
		if b, err := json.Marshal(body); err == nil {
			ttl := s.CacheTTL
			if ttl <= 0 {
				ttl = time.Hour
			}
			if err := s.Redis.Set(ctx, key, b, ttl).Err(); err != nil {
				logger.L().Debug("search_cache_set_fail", "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func searchCacheKey(backend string, k int, q string) string {
	h := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(q))))
	return "search:" + backend + ":" + strconv.Itoa(k) + ":" + hex.EncodeToString(h[:])
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.Sessions.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
			return
		}
		h(w, r, sess)
	}
}

type createResponse struct {
	session.View
	Suggested string `json:"suggested,omitempty"`
}

// createSession：可选 {"iso":"FRA"} 直接选择国家；否则按访问者 IP 给出建议国家
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ISO string `json:"iso"`
	}
	if !decodeBody(w, r, &body, true) {
		return
	}
	sess := s.Sessions.Create()
	out := createResponse{}
	if s.Locator != nil {
		if c, ok := s.Locator.Suggest(locate.ClientIP(r, s.TrustProxy)); ok {
			out.Suggested = c.ISO
		}
	}
	if body.ISO != "" {
		if err := sess.Layers.SelectCountry(r.Context(), body.ISO); err != nil && !errors.Is(err, layers.ErrStale) {
			s.Sessions.Delete(sess.ID)
			writeError(w, err)
			return
		}
	}
	out.View = sess.View()
	logger.L().Debug("session_created", "id", sess.ID, "iso", body.ISO, "suggested", out.Suggested)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.Sessions.Delete(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectCountry(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body struct {
		ISO string `json:"iso"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}
	respondAfter(w, sess, sess.Layers.SelectCountry(r.Context(), body.ISO))
}

// setLevel：{"enabled":bool,"iso":"可选，默认当前国家"}
func (s *Server) setLevel(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body struct {
		ISO     string `json:"iso"`
		Enabled *bool  `json:"enabled"`
	}
	if !decodeBody(w, r, &body, false) {
		return
	}
	if body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "enabled is required"})
		return
	}
	iso := body.ISO
	if iso == "" {
		iso = sess.Layers.Current()
	}
	respondAfter(w, sess, sess.Layers.SetLevelActive(r.Context(), iso, r.PathValue("level"), *body.Enabled))
}

type pointBody struct {
	Lon *float64 `json:"lon"`
	Lat *float64 `json:"lat"`
}

func (p pointBody) point() (orb.Point, bool) {
	if p.Lon == nil || p.Lat == nil {
		return orb.Point{}, false
	}
	return orb.Point{*p.Lon, *p.Lat}, true
}

func (s *Server) click(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body pointBody
	if !decodeBody(w, r, &body, false) {
		return
	}
	pt, ok := body.point()
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lon and lat are required"})
		return
	}
	res := sess.Click(r.Context(), pt)
	writeJSON(w, http.StatusOK, map[string]any{"hit": res != nil, "result": res, "view": sess.View()})
}

func (s *Server) hover(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var body pointBody
	if !decodeBody(w, r, &body, false) {
		return
	}
	pt, ok := body.point()
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "lon and lat are required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cursor": sess.Hover(pt)})
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var rec search.Record
	if !decodeBody(w, r, &rec, false) {
		return
	}
	respondAfter(w, sess, sess.Navigator.Navigate(r.Context(), rec))
}

// source：会话中数据源的 GeoJSON（属性已归一为 name / level / iso）
func (s *Server) source(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ds, ok := sess.Scene.Source(r.PathValue("source"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "source not found"})
		return
	}
	b, err := ds.Collection.MarshalJSON()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "encode source"})
		return
	}
	w.Header().Set("content-type", "application/geo+json")
	w.Header().Set("cache-control", "public, max-age=86400")
	_, _ = w.Write(b)
}

// respondAfter：操作成功或过期均返回当前视图；过期以 409 标记
func respondAfter(w http.ResponseWriter, sess *session.Session, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, sess.View())
		return
	}
	if errors.Is(err, layers.ErrStale) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "stale": true, "view": sess.View()})
		return
	}
	writeError(w, err)
}

type errorBody struct {
	Error string `json:"error"`
	Key   string `json:"key,omitempty"`
}

// errorStatus：错误分类 → HTTP 状态
func errorStatus(err error) int {
	var fe *boundary.FetchError
	switch {
	case errors.Is(err, catalog.ErrUnknownCountry), errors.Is(err, catalog.ErrUnknownLevel):
		return http.StatusNotFound
	case errors.Is(err, layers.ErrCountryNotSelected), errors.Is(err, layers.ErrStale):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &fe):
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var fe *boundary.FetchError
	if errors.As(err, &fe) {
		body.Key = fe.Key.String()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			writeJSON(w, http.StatusGatewayTimeout, body)
			return
		}
	}
	writeJSON(w, errorStatus(err), body)
}

// decodeBody：解析 JSON 请求体；optional=true 时允许空体
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
