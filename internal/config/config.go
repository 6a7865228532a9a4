// 包 config：集中读取环境变量（支持 .env 与 data/env/.env），供主入口与命令行工具共用
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config：服务与工具的全部可调参数
type Config struct {
	Addr    string
	APIBase string
	UIDir   string

	// 静态数据来源：DATA_URL 非空时走 HTTP（公开桶），否则读取 DATA_DIR
	DataDir string
	DataURL string

	FetchTimeout time.Duration
	NavigateZoom float64
	SearchLimit  int

	SessionCap int
	SessionTTL time.Duration

	RedisEnabled bool
	RedisTTL     time.Duration

	ContentDriver string // json | postgres | sqlite3 | mysql
	ContentDSN    string

	SearchBackend string // memory | elasticsearch
	ESURL         string
	ESIndex       string

	GeoIPPath string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustProxy       bool

	CORSOrigins []string

	TLSEnable bool
	TLSCert   string
	TLSKey    string

	LogLevel  string
	LogFormat string
}

// LoadEnvFiles：加载 .env 文件；缺失时静默忽略，已存在的环境变量不被覆盖
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// Load：加载 .env 后读取环境变量，未设置项使用默认值
func Load() *Config {
	LoadEnvFiles()
	return FromEnv()
}

// FromEnv：仅读取当前进程环境变量
func FromEnv() *Config {
	return &Config{
		Addr:             getEnv("ADDR", ":8080"),
		APIBase:          getEnv("API_BASE", "/api"),
		UIDir:            getEnv("UI_DIST", filepath.Join("ui", "dist")),
		DataDir:          getEnv("DATA_DIR", filepath.Join("data", "geoboundaries")),
		DataURL:          strings.TrimRight(os.Getenv("DATA_URL"), "/"),
		FetchTimeout:     getDuration("BOUNDARY_FETCH_TIMEOUT", 30*time.Second),
		NavigateZoom:     getFloat("NAVIGATE_ZOOM", 8),
		SearchLimit:      getInt("SEARCH_LIMIT", 10),
		SessionCap:       getInt("SESSION_CAP", 1024),
		SessionTTL:       getDuration("SESSION_TTL", 2*time.Hour),
		RedisEnabled:     getBool("REDIS_ENABLED", false),
		RedisTTL:         getDuration("REDIS_TTL", 24*time.Hour),
		ContentDriver:    strings.ToLower(getEnv("CONTENT_DRIVER", "json")),
		ContentDSN:       os.Getenv("CONTENT_DSN"),
		SearchBackend:    strings.ToLower(getEnv("SEARCH_BACKEND", "memory")),
		ESURL:            getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
		ESIndex:          getEnv("ELASTICSEARCH_INDEX", "boundary_units"),
		GeoIPPath:        os.Getenv("GEOIP_PATH"),
		RateLimitEnabled: getBool("RATE_LIMIT_ENABLED", false),
		RateLimitRPS:     getFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:   getInt("RATE_LIMIT_BURST", 40),
		TrustProxy:       getBool("TRUST_PROXY", false),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		TLSEnable:        getBool("TLS_ENABLE", false),
		TLSCert:          getEnv("TLS_CERT_FILE", filepath.Join("data", "tls", "cert.pem")),
		TLSKey:           getEnv("TLS_KEY_FILE", filepath.Join("data", "tls", "key.pem")),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogFormat:        os.Getenv("LOG_FORMAT"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return def
}

// getDuration：支持 "30s" 形式，也接受纯数字秒
func getDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
