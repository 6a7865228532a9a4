// 包 content：行政单元的描述与媒体内容
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"boundary-map/internal/datasource"
)

const File = "content.json"

type Record struct {
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	Videos      []string `json:"videos,omitempty"`
}

func (r Record) Empty() bool {
	return r.Description == "" && len(r.Images) == 0 && len(r.Videos) == 0
}

// Entry：带三段键的记录
type Entry struct {
	Country string
	Level   string
	Unit    string
	Record
}

// Store：按 (国家, 层级, 单元名) 查找；不存在返回 ok=false 且 err=nil
type Store interface {
	Lookup(ctx context.Context, country, level, unit string) (Record, bool, error)
}

// JSONStore：content.json 的只读内存视图（country → level → unit → record）
type JSONStore struct {
	data map[string]map[string]map[string]Record
}

func ParseJSON(b []byte) (*JSONStore, error) {
	s := &JSONStore{data: map[string]map[string]map[string]Record{}}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	return s, nil
}

// LoadJSON：读取 content.json；文件不存在时返回空库
func LoadJSON(ctx context.Context, src datasource.Source) (*JSONStore, error) {
	b, err := datasource.ReadAll(ctx, src, File)
	if err != nil {
		if errors.Is(err, datasource.ErrNotFound) {
			return &JSONStore{data: map[string]map[string]map[string]Record{}}, nil
		}
		return nil, err
	}
	return ParseJSON(b)
}

func (s *JSONStore) Lookup(_ context.Context, country, level, unit string) (Record, bool, error) {
	r, ok := s.data[country][level][unit]
	return r, ok, nil
}

// Entries：全部记录，按键排序
func (s *JSONStore) Entries() []Entry {
	var out []Entry
	for c, levels := range s.data {
		for l, units := range levels {
			for u, r := range units {
				out = append(out, Entry{Country: c, Level: l, Unit: u, Record: r})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.Unit < b.Unit
	})
	return out
}
