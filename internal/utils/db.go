// 包 utils：SQL / Redis / TLS 连接工具，供主入口与 boundaryctl 共用
package utils

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// NormalizeDriver：驱动别名归一（pg/postgresql → postgres，sqlite → sqlite3）
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pg", "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "mysql", "mariadb":
		return "mysql"
	}
	return strings.ToLower(strings.TrimSpace(driver))
}

// OpenSQL：按驱动打开连接池
// 约束：sqlite3 单写连接；其余使用 PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS（默认 50/25）
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	driver = NormalizeDriver(driver)
	switch driver {
	case "postgres", "sqlite3", "mysql":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if dsn == "" && driver == "postgres" {
		dsn = BuildPostgresDSNFromEnv()
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty dsn", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(envInt("PG_MAX_OPEN_CONNS", 50))
	db.SetMaxIdleConns(envInt("PG_MAX_IDLE_CONNS", 25))
	return db, nil
}

func BuildPostgresDSNFromEnv() string {
	host := os.Getenv("PG_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("PG_USER")
	if user == "" {
		user = "postgres"
	}
	pass := os.Getenv("PG_PASSWORD")
	db := os.Getenv("PG_DB")
	if db == "" {
		db = "boundary"
	}
	ssl := os.Getenv("PG_SSLMODE")
	if ssl == "" {
		ssl = "disable"
	}
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			return n
		}
	}
	return def
}
