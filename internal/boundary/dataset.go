// 包 boundary：边界数据集（国家 × 层级）的解析、获取与进程内缓存
package boundary

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// 归一后的要素属性名
const (
	PropName  = "name"
	PropLevel = "level"
	PropISO   = "iso"
)

// Key：数据集标识（国家 ISO3 + 层级代码）
type Key struct {
	Country string
	Level   string
}

func (k Key) String() string { return k.Country + "/" + k.Level }

// SourceID：渲染器中的数据源 ID
func (k Key) SourceID() string { return "boundary-" + k.Country + "-" + k.Level }

// Feature：单个行政单元
type Feature struct {
	Name     string
	Level    string
	Country  string
	Geometry orb.Geometry
	Bound    orb.Bound
}

// Contains：包围盒预筛后按奇偶规则判定点是否落入面
// 约束：仅面类型（Polygon / MultiPolygon）可命中；Collection 逐个判定
func (f *Feature) Contains(pt orb.Point) bool {
	if f.Geometry == nil || !f.Bound.Contains(pt) {
		return false
	}
	return geometryContains(f.Geometry, pt)
}

func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	case orb.Collection:
		for _, sub := range v {
			if geometryContains(sub, pt) {
				return true
			}
		}
	}
	return false
}

// 文档注释：一个国家某层级的全部边界
// 背景：写入缓存后由所有会话共享；Collection 保留原始 GeoJSON（属性已归一），供前端数据源下发。
// 约束：插入缓存后不可修改。
type Dataset struct {
	Key        Key
	Collection *geojson.FeatureCollection
	Features   []Feature
	Size       int // 原始字节数
}

// Parse：解析 FeatureCollection 并归一属性
// 背景：geoBoundaries 使用 shapeName / shapeType / shapeGroup，处理后的数据使用 name / level / iso。
// 约束：缺失层级或国家时取数据集自身的键；无几何的要素保留在 Collection 但不参与命中。
func Parse(key Key, data []byte) (*Dataset, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	ds := &Dataset{Key: key, Collection: fc, Features: make([]Feature, 0, len(fc.Features)), Size: len(data)}
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		name := firstString(f.Properties, PropName, "shapeName", "NAME")
		level := firstString(f.Properties, PropLevel, "shapeType")
		if level == "" {
			level = key.Level
		}
		iso := strings.ToUpper(firstString(f.Properties, PropISO, "shapeGroup"))
		if iso == "" {
			iso = key.Country
		}
		f.Properties[PropName] = name
		f.Properties[PropLevel] = level
		f.Properties[PropISO] = iso
		if f.Geometry == nil {
			continue
		}
		ds.Features = append(ds.Features, Feature{
			Name:     name,
			Level:    level,
			Country:  iso,
			Geometry: f.Geometry,
			Bound:    f.Geometry.Bound(),
		})
	}
	return ds, nil
}

// Hits：返回包含该点的全部要素（数据集顺序）
func (d *Dataset) Hits(pt orb.Point) []Feature {
	var out []Feature
	for i := range d.Features {
		if d.Features[i].Contains(pt) {
			out = append(out, d.Features[i])
		}
	}
	return out
}

// Find：按名称（不区分大小写）查找要素
func (d *Dataset) Find(name string) (Feature, bool) {
	for _, f := range d.Features {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Feature{}, false
}

func firstString(p geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
