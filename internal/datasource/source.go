// 包 datasource：静态数据文件（目录清单、边界、内容、搜索索引）的读取来源
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound：来源中不存在该路径
var ErrNotFound = errors.New("datasource: not found")

// Source：按相对路径打开数据文件
// 约束：路径使用正斜杠分隔；实现需支持 ctx 取消；不存在时返回包装 ErrNotFound 的错误
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	String() string
}

// Dir：本地目录来源
type Dir struct {
	Root string
}

func (d Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + name)
	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (d Dir) String() string { return "dir:" + d.Root }

// HTTP：公开对象存储（R2/S3 公共访问地址）或任意静态站点
// 约束：非 2xx 视为失败，404 映射为 ErrNotFound；客户端为空时使用 30s 超时的默认客户端
type HTTP struct {
	Base   string
	Client *http.Client
}

func NewHTTP(base string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), Client: &http.Client{Timeout: timeout}}
}

func (h *HTTP) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	u := h.Base + "/" + escapePath(strings.TrimLeft(name, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c := h.Client
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d", name, resp.StatusCode)
	}
	return resp.Body, nil
}

func (h *HTTP) String() string { return "http:" + h.Base }

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// ReadAll：读取整个文件
func ReadAll(ctx context.Context, src Source, name string) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DecodeJSON：读取并解析 JSON 文件到 v
func DecodeJSON(ctx context.Context, src Source, name string, v any) error {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
