package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"boundary-map/internal/migrate"
	"boundary-map/internal/utils"
)

// 文档注释：SQL 内容库（postgres / sqlite3 / mysql）
// 背景：内容由编辑维护时放入数据库，避免每次更新重新发布 content.json。
// 约束：查询统一以 ? 书写，postgres 下改写为 $n；媒体列为 JSON 数组文本。
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: utils.NormalizeDriver(driver)}
}

// OpenSQLStore：打开连接并确保表结构存在
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := utils.OpenSQL(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return NewSQLStore(db, driver), nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Lookup(ctx context.Context, country, level, unit string) (Record, bool, error) {
	q := s.format(`SELECT description, images, videos FROM ` + migrate.ContentTable + ` WHERE country = ? AND level = ? AND unit = ?`)
	var desc, images, videos string
	err := s.db.QueryRowContext(ctx, q, country, level, unit).Scan(&desc, &images, &videos)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup content %s/%s/%s: %w", country, level, unit, err)
	}
	r := Record{Description: desc}
	if err := decodeList(images, &r.Images); err != nil {
		return Record{}, false, err
	}
	if err := decodeList(videos, &r.Videos); err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Import：事务内批量写入，已存在的键覆盖
func (s *SQLStore) Import(ctx context.Context, entries []Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, s.upsertSQL())
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, e := range entries {
		images, _ := json.Marshal(nonNil(e.Images))
		videos, _ := json.Marshal(nonNil(e.Videos))
		if _, err := stmt.ExecContext(ctx, e.Country, e.Level, e.Unit, e.Description, string(images), string(videos)); err != nil {
			_ = tx.Rollback()
			return n, fmt.Errorf("import %s/%s/%s: %w", e.Country, e.Level, e.Unit, err)
		}
		n++
	}
	return n, tx.Commit()
}

func (s *SQLStore) upsertSQL() string {
	base := `INSERT INTO ` + migrate.ContentTable + ` (country, level, unit, description, images, videos) VALUES (?, ?, ?, ?, ?, ?)`
	if s.driver == "mysql" {
		return base + ` ON DUPLICATE KEY UPDATE description = VALUES(description), images = VALUES(images), videos = VALUES(videos)`
	}
	return s.format(base + ` ON CONFLICT (country, level, unit) DO UPDATE SET description = excluded.description, images = excluded.images, videos = excluded.videos`)
}

// format：postgres 占位符改写
func (s *SQLStore) format(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var sb strings.Builder
	n := 1
	for _, ch := range q {
		if ch == '?' {
			fmt.Fprintf(&sb, "$%d", n)
			n++
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func decodeList(s string, out *[]string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("decode media list: %w", err)
	}
	if len(*out) == 0 {
		*out = nil
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
