package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"boundary-map/internal/catalog"
	"boundary-map/internal/metrics"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"
)

// 文档注释：内存模糊索引
// 背景：先按子序列匹配打分（sahilm/fuzzy），结果不足时补充按词编辑距离容错的匹配。
// 约束：查询去空白后少于 2 个字符返回空；词长 ≥4 容许 1 处编辑，≥8 容许 2 处；构建后只读。
type Index struct {
	recs   []Record
	texts  []string   // 小写 Text()
	tokens [][]string // 小写分词
}

func NewIndex(recs []Record) *Index {
	ix := &Index{recs: recs, texts: make([]string, len(recs)), tokens: make([][]string, len(recs))}
	for i, r := range recs {
		ix.texts[i] = strings.ToLower(r.Text())
		ix.tokens[i] = tokenize(ix.texts[i])
	}
	return ix
}

func (ix *Index) Len() int { return len(ix.recs) }

// String / Len 满足 fuzzy.Source
type textSource []string

func (s textSource) String(i int) string { return s[i] }
func (s textSource) Len() int            { return len(s) }

type scored struct {
	idx   int
	exact bool
	score int
	dist  int
}

func (ix *Index) Search(_ context.Context, query string, k int) ([]Record, error) {
	start := time.Now()
	defer func() {
		metrics.SearchRequestsTotal.WithLabelValues("memory").Inc()
		metrics.SearchDurationMs.WithLabelValues("memory").Observe(float64(time.Since(start).Milliseconds()))
	}()
	q := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < minQueryLen {
		return []Record{}, nil
	}
	if k <= 0 {
		k = DefaultLimit
	}
	seen := map[int]bool{}
	var primary []scored
	for _, m := range fuzzy.FindFrom(q, textSource(ix.texts)) {
		seen[m.Index] = true
		primary = append(primary, scored{idx: m.Index, exact: strings.EqualFold(ix.recs[m.Index].Name, q), score: m.Score})
	}
	sort.SliceStable(primary, func(i, j int) bool { return ix.less(primary[i], primary[j]) })

	var typo []scored
	if len(primary) < k {
		qt := tokenize(q)
		for i := range ix.recs {
			if seen[i] {
				continue
			}
			if d, ok := tokensWithin(qt, ix.tokens[i]); ok {
				typo = append(typo, scored{idx: i, dist: d})
			}
		}
		sort.SliceStable(typo, func(i, j int) bool {
			if typo[i].dist != typo[j].dist {
				return typo[i].dist < typo[j].dist
			}
			return ix.less(typo[i], typo[j])
		})
	}

	out := make([]Record, 0, k)
	for _, s := range append(primary, typo...) {
		if len(out) == k {
			break
		}
		out = append(out, ix.recs[s.idx])
	}
	return out, nil
}

// less：完全同名优先，其次分数高，再次名称短、层级粗
func (ix *Index) less(a, b scored) bool {
	if a.exact != b.exact {
		return a.exact
	}
	if a.score != b.score {
		return a.score > b.score
	}
	ra, rb := ix.recs[a.idx], ix.recs[b.idx]
	if len(ra.Name) != len(rb.Name) {
		return len(ra.Name) < len(rb.Name)
	}
	if pa, pb := catalog.ParseRank(ra.Level), catalog.ParseRank(rb.Level); pa != pb {
		return pa < pb
	}
	return ra.ID < rb.ID
}

// tokensWithin：每个查询词都须近似匹配某个候选词（或为其前缀），返回总编辑距离
func tokensWithin(query, cand []string) (int, bool) {
	if len(query) == 0 {
		return 0, false
	}
	total := 0
	for _, q := range query {
		best := -1
		allowed := allowedEdits(q)
		for _, c := range cand {
			if strings.HasPrefix(c, q) {
				best = 0
				break
			}
			if allowed == 0 {
				continue
			}
			if d := levenshtein.ComputeDistance(q, c); d <= allowed && (best < 0 || d < best) {
				best = d
			}
		}
		if best < 0 {
			return 0, false
		}
		total += best
	}
	return total, true
}

func allowedEdits(tok string) int {
	n := utf8.RuneCountInString(tok)
	switch {
	case n >= 8:
		return 2
	case n >= 4:
		return 1
	}
	return 0
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
}
