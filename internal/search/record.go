// 包 search：行政单元名称搜索（内存模糊索引 / Elasticsearch）
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"boundary-map/internal/datasource"

	"github.com/paulmach/orb"
)

const (
	IndexFile    = "search-index.json"
	ManifestFile = "search-index-manifest.json"
	DefaultLimit = 10
	minQueryLen  = 2
)

// Record：可搜索的单元
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	ISO       string    `json:"iso"`
	Hierarchy []string  `json:"hierarchy"`
	Center    orb.Point `json:"center"`
}

// Text：名称 + 上级层级，用于匹配与展示（"Cook County, United States"）
func (r Record) Text() string {
	parts := r.Hierarchy
	if len(parts) == 0 || parts[0] != r.Name {
		parts = append([]string{r.Name}, parts...)
	}
	return strings.Join(parts, ", ")
}

// Searcher：按查询返回至多 k 条记录
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Record, error)
}

type indexFile struct {
	Index []Record `json:"index"`
}

// ParseIndex：{"index":[…]} 或裸数组
func ParseIndex(b []byte) ([]Record, error) {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var list []Record
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, fmt.Errorf("parse search index: %w", err)
		}
		return list, nil
	}
	var f indexFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse search index: %w", err)
	}
	return f.Index, nil
}

// Part：清单中的一个分片文件
type Part struct {
	File  string `json:"file"`
	Count int    `json:"count"`
}

// ContinentPart：按大洲分片；SplitByCountry 时再按国家分片
type ContinentPart struct {
	Part
	SplitByCountry bool            `json:"splitByCountry,omitempty"`
	Countries      map[string]Part `json:"countries,omitempty"`
	TotalCount     int             `json:"totalCount,omitempty"`
}

type Manifest struct {
	Continents map[string]ContinentPart `json:"continents"`
}

// Files：清单引用的全部文件，按大洲、国家排序
func (m Manifest) Files() []string {
	var out []string
	names := make([]string, 0, len(m.Continents))
	for n := range m.Continents {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := m.Continents[n]
		if !c.SplitByCountry {
			if c.File != "" {
				out = append(out, c.File)
			}
			continue
		}
		isos := make([]string, 0, len(c.Countries))
		for iso := range c.Countries {
			isos = append(isos, iso)
		}
		sort.Strings(isos)
		for _, iso := range isos {
			out = append(out, c.Countries[iso].File)
		}
	}
	return out
}

// Load：优先读取分片清单，不存在时读取单文件索引
func Load(ctx context.Context, src datasource.Source) ([]Record, error) {
	var m Manifest
	err := datasource.DecodeJSON(ctx, src, ManifestFile, &m)
	switch {
	case err == nil:
		return loadParts(ctx, src, m)
	case !errors.Is(err, datasource.ErrNotFound):
		return nil, err
	}
	b, err := datasource.ReadAll(ctx, src, IndexFile)
	if err != nil {
		if errors.Is(err, datasource.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ParseIndex(b)
}

func loadParts(ctx context.Context, src datasource.Source, m Manifest) ([]Record, error) {
	var out []Record
	for _, f := range m.Files() {
		b, err := datasource.ReadAll(ctx, src, path.Clean(f))
		if err != nil {
			return nil, fmt.Errorf("search part %s: %w", f, err)
		}
		recs, err := ParseIndex(b)
		if err != nil {
			return nil, fmt.Errorf("search part %s: %w", f, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}
