package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"boundary-map/internal/metrics"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "name": {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "type": {"type": "keyword"},
      "level": {"type": "keyword"},
      "iso": {"type": "keyword"},
      "hierarchy": {"type": "text"},
      "center": {"type": "geo_point"}
    }
  }
}`

// ESIndex：Elasticsearch 搜索后端
// 约束：center 以 [lon, lat] 存为 geo_point；查询为 name^3 + hierarchy 的 multi_match，fuzziness AUTO
type ESIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewESClient(url string) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
}

func NewESIndex(client *elasticsearch.Client, index string) *ESIndex {
	return &ESIndex{client: client, index: index}
}

// EnsureIndex：索引不存在时按映射创建
func (es *ESIndex) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{es.index}}.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}
	res, err = esapi.IndicesCreateRequest{Index: es.index, Body: strings.NewReader(indexMapping)}.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index: %s", body)
	}
	return nil
}

// BulkIndex：按批写入，返回写入条数
func (es *ESIndex) BulkIndex(ctx context.Context, recs []Record, batch int) (int, error) {
	if batch <= 0 {
		batch = 1000
	}
	n := 0
	for start := 0; start < len(recs); start += batch {
		end := start + batch
		if end > len(recs) {
			end = len(recs)
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range recs[start:end] {
			meta := map[string]any{"index": map[string]any{"_index": es.index, "_id": r.ID}}
			if err := enc.Encode(meta); err != nil {
				return n, err
			}
			if err := enc.Encode(r); err != nil {
				return n, err
			}
		}
		res, err := esapi.BulkRequest{Body: &buf}.Do(ctx, es.client)
		if err != nil {
			return n, fmt.Errorf("bulk index: %w", err)
		}
		var out struct {
			Errors bool `json:"errors"`
		}
		decErr := json.NewDecoder(res.Body).Decode(&out)
		res.Body.Close()
		if res.IsError() {
			return n, fmt.Errorf("bulk index: status %d", res.StatusCode)
		}
		if decErr == nil && out.Errors {
			return n, fmt.Errorf("bulk index: item errors in batch starting at %d", start)
		}
		n += end - start
	}
	return n, nil
}

func (es *ESIndex) Search(ctx context.Context, query string, k int) ([]Record, error) {
	start := time.Now()
	defer func() {
		metrics.SearchRequestsTotal.WithLabelValues("elasticsearch").Inc()
		metrics.SearchDurationMs.WithLabelValues("elasticsearch").Observe(float64(time.Since(start).Milliseconds()))
	}()
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < minQueryLen {
		return []Record{}, nil
	}
	if k <= 0 {
		k = DefaultLimit
	}
	body := map[string]any{
		"size": k,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     q,
				"fields":    []string{"name^3", "hierarchy"},
				"fuzziness": "AUTO",
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	res, err := esapi.SearchRequest{Index: []string{es.index}, Body: &buf}.Do(ctx, es.client)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search: status %d: %s", res.StatusCode, b)
	}
	var out struct {
		Hits struct {
			Hits []struct {
				Source Record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	recs := make([]Record, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		recs = append(recs, h.Source)
	}
	return recs, nil
}
