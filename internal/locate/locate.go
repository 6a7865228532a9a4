// 包 locate：访问者 IP → 建议国家（GeoLite2 Country）
package locate

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"boundary-map/internal/catalog"

	"github.com/oschwald/geoip2-golang"
)

// 文档注释：获取访问者 IP
// 背景：多层代理下依次读取常见反向代理头，最后回退远端地址。
// 约束：trustProxy=false 时忽略全部代理头，直接使用 RemoteAddr，避免伪造头绕过限流。
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		h := r.Header
		if x := h.Get("X-Forwarded-For"); x != "" {
			return strings.TrimSpace(strings.Split(x, ",")[0])
		}
		for _, k := range []string{"CF-Connecting-IP", "X-Real-IP", "X-Client-IP"} {
			if x := strings.TrimSpace(h.Get(k)); x != "" {
				return x
			}
		}
		if x := h.Get("Forwarded"); x != "" {
			if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
				y := strings.Trim(x[i+4:], "\" ")
				if p := strings.IndexAny(y, ";,"); p >= 0 {
					y = y[:p]
				}
				return strings.Trim(y, "\"[]")
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Locator：GeoLite2 / GeoIP2 Country 库
type Locator struct {
	db  *geoip2.Reader
	cat *catalog.Catalog
}

func Open(path string, cat *catalog.Catalog) (*Locator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip %s: %w", path, err)
	}
	return &Locator{db: db, cat: cat}, nil
}

func (l *Locator) Close() error { return l.db.Close() }

// Suggest：IP 所在国家对应的目录国家；未知或不在目录中返回 false
func (l *Locator) Suggest(ip string) (*catalog.Country, bool) {
	if l == nil || l.db == nil {
		return nil, false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, false
	}
	rec, err := l.db.Country(parsed)
	if err != nil {
		return nil, false
	}
	return Match(l.cat, rec.Country.IsoCode, rec.Country.Names["en"])
}

// Match：按 ISO2 匹配目录国家，缺失 ISO2 时按英文名（不区分大小写）
func Match(cat *catalog.Catalog, iso2, name string) (*catalog.Country, bool) {
	if cat == nil {
		return nil, false
	}
	iso2 = strings.ToUpper(strings.TrimSpace(iso2))
	var byName *catalog.Country
	for _, c := range cat.All() {
		if iso2 != "" && c.ISO2 == iso2 {
			return c, true
		}
		if byName == nil && name != "" && strings.EqualFold(c.Name, name) {
			byName = c
		}
	}
	return byName, byName != nil
}
