// 包 catalog：国家 → 行政层级术语目录（terminology.json / countries.json）
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"boundary-map/internal/datasource"

	"github.com/paulmach/orb"
)

var (
	ErrUnknownCountry = errors.New("catalog: unknown country")
	ErrUnknownLevel   = errors.New("catalog: unknown level")
)

const (
	TerminologyFile = "terminology.json"
	CountriesFile   = "countries.json"
)

// DefaultView：国家默认视角（经纬中心 + 缩放）
type DefaultView struct {
	Center orb.Point
	Zoom   float64
}

// Level：行政层级；Rank 由代码解析（ADMn → n），无法解析为 -1
type Level struct {
	Code string
	Rank int
	Term string
	File string
}

// Country：加载后只读
type Country struct {
	ISO         string
	Name        string
	ISO2        string
	Continent   string
	Disputed    bool
	DefaultView DefaultView
	Levels      []Level // 按 Rank 升序
}

// Level 按代码查找层级
func (c *Country) Level(code string) (Level, bool) {
	for _, l := range c.Levels {
		if l.Code == code {
			return l, true
		}
	}
	return Level{}, false
}

// Lowest：最粗层级（Rank 最小）
func (c *Country) Lowest() (Level, bool) {
	if len(c.Levels) == 0 {
		return Level{}, false
	}
	return c.Levels[0], true
}

// DatasetPath：边界文件相对路径，按大洲/国家目录组织；大洲未知时直接使用文件名
func (c *Country) DatasetPath(l Level) string {
	if strings.TrimSpace(c.Continent) == "" {
		return l.File
	}
	return path.Join(c.Continent, c.ISO, l.File)
}

// Summary：countries.json 的一行
type Summary struct {
	ISO      string `json:"iso"`
	Name     string `json:"name"`
	Disputed bool   `json:"disputed"`
}

// 文档注释：术语目录
// 背景：启动时一次性加载；所有会话共享同一只读实例。
// 约束：加载后不可变，无需加锁。
type Catalog struct {
	countries map[string]*Country
	list      []Summary
}

type rawLevel struct {
	Term string `json:"term"`
	File string `json:"file"`
}

type rawView struct {
	Center []float64 `json:"center"`
	Zoom   float64   `json:"zoom"`
}

type rawCountry struct {
	Name        string              `json:"name"`
	ISO2        string              `json:"iso2"`
	Continent   string              `json:"continent"`
	Disputed    bool                `json:"disputed"`
	DefaultView rawView             `json:"defaultView"`
	Levels      map[string]rawLevel `json:"levels"`
}

// ParseRank：ADMn → n；其他返回 -1
func ParseRank(code string) int {
	s := strings.ToUpper(strings.TrimSpace(code))
	if !strings.HasPrefix(s, "ADM") {
		return -1
	}
	n, err := strconv.Atoi(s[3:])
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Load：从数据源读取 terminology.json，countries.json 缺失时由目录推导
func Load(ctx context.Context, src datasource.Source) (*Catalog, error) {
	raw := map[string]rawCountry{}
	if err := datasource.DecodeJSON(ctx, src, TerminologyFile, &raw); err != nil {
		return nil, fmt.Errorf("load terminology: %w", err)
	}
	var list []Summary
	if err := datasource.DecodeJSON(ctx, src, CountriesFile, &list); err != nil {
		if !errors.Is(err, datasource.ErrNotFound) {
			return nil, fmt.Errorf("load countries: %w", err)
		}
		list = nil
	}
	return build(raw, list)
}

// Parse：直接从字节构造，供 CLI 与测试使用
func Parse(terminology, countries []byte) (*Catalog, error) {
	raw := map[string]rawCountry{}
	if err := json.Unmarshal(terminology, &raw); err != nil {
		return nil, fmt.Errorf("parse terminology: %w", err)
	}
	var list []Summary
	if len(countries) > 0 {
		if err := json.Unmarshal(countries, &list); err != nil {
			return nil, fmt.Errorf("parse countries: %w", err)
		}
	}
	return build(raw, list)
}

func build(raw map[string]rawCountry, list []Summary) (*Catalog, error) {
	c := &Catalog{countries: make(map[string]*Country, len(raw))}
	for iso, rc := range raw {
		iso = strings.ToUpper(strings.TrimSpace(iso))
		if iso == "" {
			continue
		}
		ctry := &Country{
			ISO:       iso,
			Name:      rc.Name,
			ISO2:      strings.ToUpper(rc.ISO2),
			Continent: rc.Continent,
			Disputed:  rc.Disputed,
		}
		if len(rc.DefaultView.Center) >= 2 {
			ctry.DefaultView.Center = orb.Point{rc.DefaultView.Center[0], rc.DefaultView.Center[1]}
		}
		ctry.DefaultView.Zoom = rc.DefaultView.Zoom
		for code, l := range rc.Levels {
			ctry.Levels = append(ctry.Levels, Level{Code: code, Rank: ParseRank(code), Term: l.Term, File: l.File})
		}
		sort.Slice(ctry.Levels, func(i, j int) bool {
			if ctry.Levels[i].Rank != ctry.Levels[j].Rank {
				return ctry.Levels[i].Rank < ctry.Levels[j].Rank
			}
			return ctry.Levels[i].Code < ctry.Levels[j].Code
		})
		c.countries[iso] = ctry
	}
	if len(list) == 0 {
		for _, ctry := range c.countries {
			list = append(list, Summary{ISO: ctry.ISO, Name: ctry.Name, Disputed: ctry.Disputed})
		}
	}
	// 仅保留目录中存在的国家，按名称排序
	out := list[:0:0]
	for _, s := range list {
		s.ISO = strings.ToUpper(s.ISO)
		if _, ok := c.countries[s.ISO]; ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	c.list = out
	return c, nil
}

// Country 按 ISO 查找
func (c *Catalog) Country(iso string) (*Country, error) {
	ctry, ok := c.countries[strings.ToUpper(strings.TrimSpace(iso))]
	if !ok {
		return nil, fmt.Errorf("%q: %w", iso, ErrUnknownCountry)
	}
	return ctry, nil
}

// Level 查找层级；国家不存在返回 ErrUnknownCountry，层级不存在返回 ErrUnknownLevel
func (c *Catalog) Level(iso, code string) (*Country, Level, error) {
	ctry, err := c.Country(iso)
	if err != nil {
		return nil, Level{}, err
	}
	l, ok := ctry.Level(code)
	if !ok {
		return ctry, Level{}, fmt.Errorf("%s %q: %w", ctry.ISO, code, ErrUnknownLevel)
	}
	return ctry, l, nil
}

// Term：层级显示术语；缺失时 ok=false，调用方按需回退到层级代码
func (c *Catalog) Term(iso, code string) (string, bool) {
	_, l, err := c.Level(iso, code)
	if err != nil || l.Term == "" {
		return "", false
	}
	return l.Term, true
}

// TermOr：术语或原始层级代码
func (c *Catalog) TermOr(iso, code string) string {
	if t, ok := c.Term(iso, code); ok {
		return t
	}
	return code
}

func (c *Catalog) Countries() []Summary {
	out := make([]Summary, len(c.list))
	copy(out, c.list)
	return out
}

// All：全部国家，按 ISO 排序
func (c *Catalog) All() []*Country {
	out := make([]*Country, 0, len(c.countries))
	for _, ctry := range c.countries {
		out = append(out, ctry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISO < out[j].ISO })
	return out
}

func (c *Catalog) Len() int { return len(c.countries) }
