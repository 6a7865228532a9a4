package boundary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

// square：以 (x,y) 为左下角、边长 s 的正方形要素
func square(name, props string, x, y, s float64) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{%s"shapeName":%q},"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		props, name, x, y, x+s, y, x+s, y+s, x, y+s, x, y)
}

func collection(features ...string) []byte {
	return []byte(`{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`)
}

func TestParseNormalizesProperties(t *testing.T) {
	data := collection(
		square("Ile-de-France", `"shapeType":"ADM1","shapeGroup":"fra",`, 0, 0, 2),
		`{"type":"Feature","properties":{"name":"Nowhere"},"geometry":null}`,
		square("Bretagne", "", 5, 5, 1),
	)
	ds, err := Parse(Key{Country: "FRA", Level: "ADM1"}, data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ds.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(ds.Features))
	}
	if f := ds.Features[0]; f.Name != "Ile-de-France" || f.Level != "ADM1" || f.Country != "FRA" {
		t.Errorf("feature 0 = %+v", f)
	}
	if f := ds.Features[1]; f.Level != "ADM1" || f.Country != "FRA" {
		t.Errorf("feature 1 defaults = %+v", f)
	}
	if len(ds.Collection.Features) != 3 {
		t.Errorf("collection keeps all features, got %d", len(ds.Collection.Features))
	}
	if got := ds.Collection.Features[0].Properties[PropISO]; got != "FRA" {
		t.Errorf("normalized iso = %v", got)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(Key{Country: "FRA", Level: "ADM1"}, []byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestFeatureContains(t *testing.T) {
	ds, err := Parse(Key{Country: "FRA", Level: "ADM1"}, collection(square("A", "", 0, 0, 2)))
	if err != nil {
		t.Fatal(err)
	}
	f := ds.Features[0]
	if !f.Contains(orb.Point{1, 1}) {
		t.Error("center should hit")
	}
	if f.Contains(orb.Point{3, 1}) {
		t.Error("outside should miss")
	}
	if hits := ds.Hits(orb.Point{1, 1}); len(hits) != 1 {
		t.Errorf("Hits = %d", len(hits))
	}
	if _, ok := ds.Find("a"); !ok {
		t.Error("Find should be case-insensitive")
	}
}

func TestMultiPolygonContains(t *testing.T) {
	data := []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"Islands"},
	"geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[10,10],[11,10],[11,11],[10,11],[10,10]]]]}}]}`)
	ds, err := Parse(Key{Country: "IDN", Level: "ADM0"}, data)
	if err != nil {
		t.Fatal(err)
	}
	f := ds.Features[0]
	if !f.Contains(orb.Point{10.5, 10.5}) || !f.Contains(orb.Point{0.5, 0.5}) {
		t.Error("both parts should hit")
	}
	if f.Contains(orb.Point{5, 5}) {
		t.Error("gap between parts should miss")
	}
}

type countingFetcher struct {
	calls atomic.Int32
	data  []byte
	err   error
	gate  chan struct{}
}

func (c *countingFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	c.calls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.data, nil
}

func TestCacheIdempotent(t *testing.T) {
	f := &countingFetcher{data: collection(square("A", "", 0, 0, 1))}
	c := NewCache(f, time.Second)
	k := Key{Country: "USA", Level: "ADM1"}
	a, err := c.Get(context.Background(), k, "x.geojson")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(context.Background(), k, "x.geojson")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second Get should return the same dataset")
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestCacheConcurrentDedupe(t *testing.T) {
	f := &countingFetcher{data: collection(square("A", "", 0, 0, 1)), gate: make(chan struct{})}
	c := NewCache(f, time.Second)
	k := Key{Country: "USA", Level: "ADM2"}
	var wg sync.WaitGroup
	results := make([]*Dataset, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := c.Get(context.Background(), k, "y.geojson")
			if err != nil {
				t.Error(err)
			}
			results[i] = ds
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	for _, ds := range results {
		if ds != results[0] {
			t.Fatal("all concurrent callers should share one dataset")
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestCacheFailureNotCached(t *testing.T) {
	f := &countingFetcher{err: errors.New("boom")}
	c := NewCache(f, time.Second)
	k := Key{Country: "USA", Level: "ADM3"}
	_, err := c.Get(context.Background(), k, "z.geojson")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Key != k || fe.Path != "z.geojson" {
		t.Errorf("FetchError = %+v", fe)
	}
	if _, ok := c.Peek(k); ok {
		t.Error("failure must not be cached")
	}
	f.err = nil
	f.data = collection(square("A", "", 0, 0, 1))
	if _, err := c.Get(context.Background(), k, "z.geojson"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}

func TestCacheCallerCancelKeepsSharedFetch(t *testing.T) {
	f := &countingFetcher{data: collection(square("A", "", 0, 0, 1)), gate: make(chan struct{})}
	c := NewCache(f, time.Second)
	k := Key{Country: "FRA", Level: "ADM2"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, k, "p.geojson")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(f.gate)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Peek(k); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("shared fetch should still populate the cache")
}

func TestRedisFetcherNilClientPassesThrough(t *testing.T) {
	f := &countingFetcher{data: []byte("raw")}
	r := NewRedisFetcher(f, nil, time.Minute)
	b, err := r.Fetch(context.Background(), "a")
	if err != nil || string(b) != "raw" {
		t.Fatalf("Fetch = %q, %v", b, err)
	}
}
