package middleware

import (
	"net/http"

	"boundary-map/internal/logger"

	"github.com/rs/cors"
)

// CORS：允许浏览器地图跨域调用会话接口；origins 含 "*" 时不携带凭据
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: !wildcard,
	})
	logger.L().Debug("cors_setup", "origins", origins, "credentials", !wildcard)
	return c.Handler
}
