// 包 feature：点击位置的要素归属（最精细层级优先）
package feature

import (
	"boundary-map/internal/catalog"
	"boundary-map/internal/metrics"
	"boundary-map/internal/render"

	"github.com/paulmach/orb"
)

// Unit：解析出的行政单元
type Unit struct {
	Name    string `json:"name"`
	Level   string `json:"level"`
	Country string `json:"iso"`
	Rank    int    `json:"rank"`
	LayerID string `json:"layer"`
}

// Querier：渲染器的点查询能力
type Querier interface {
	QueryFeatures(pt orb.Point, layerIDs []string) []render.Hit
}

type Resolver struct {
	q Querier
}

func NewResolver(q Querier) *Resolver { return &Resolver{q: q} }

// Resolve：在给定图层中查询命中，取层级序号最大者；同序号保留首个命中
// 约束：层级代码无法解析时序号为 -1，低于 ADM0；无命中返回 false
func (r *Resolver) Resolve(pt orb.Point, layerIDs []string) (Unit, bool) {
	best, ok := Pick(r.q.QueryFeatures(pt, layerIDs))
	if !ok {
		metrics.FeatureClicksTotal.WithLabelValues("miss").Inc()
		return Unit{}, false
	}
	metrics.FeatureClicksTotal.WithLabelValues("hit").Inc()
	return best, true
}

// Pick：从命中列表选择最精细的单元
func Pick(hits []render.Hit) (Unit, bool) {
	var (
		best  Unit
		found bool
	)
	for _, h := range hits {
		rank := catalog.ParseRank(h.Level)
		if !found || rank > best.Rank {
			best = Unit{Name: h.Name, Level: h.Level, Country: h.Country, Rank: rank, LayerID: h.LayerID}
			found = true
		}
	}
	return best, found
}
