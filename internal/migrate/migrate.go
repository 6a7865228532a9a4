// 包 migrate：内容库表结构
package migrate

import (
	"context"
	"database/sql"

	"boundary-map/internal/logger"
)

const ContentTable = "_boundary_content"

// EnsureSchema：首次运行自动创建内容表
// 约束：使用 IF NOT EXISTS，可重复执行；键列使用 VARCHAR，兼容 postgres / sqlite3 / mysql；
// images / videos 以 JSON 数组文本存储
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + ContentTable + ` (
			country VARCHAR(8) NOT NULL,
			level VARCHAR(16) NOT NULL,
			unit VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			images TEXT NOT NULL,
			videos TEXT NOT NULL,
			PRIMARY KEY (country, level, unit)
		)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
