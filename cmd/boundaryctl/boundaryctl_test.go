package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"boundary-map/internal/datasource"
	"boundary-map/internal/fixture"
	"boundary-map/internal/search"
)

func TestSizeLimit(t *testing.T) {
	cases := map[int]int{0: 500, 1: 1000, 2: 2000, 3: 3000, 5: 3000, -1: 3000}
	for rank, want := range cases {
		if got := sizeLimitKB(rank); got != want {
			t.Errorf("sizeLimitKB(%d) = %d, want %d", rank, got, want)
		}
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	if err := fixture.WriteDir(dir); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "Europe", "FRA", "FRA_ADM2_Department.geojson")
	if err := os.WriteFile(broken, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "Northern America", "USA", "USA_ADM1_State.geojson")); err != nil {
		t.Fatal(err)
	}
	reps := checkCatalog(context.Background(), datasource.Dir{Root: dir}, fixture.Catalog())
	if len(reps) != 6 {
		t.Fatalf("reports = %d", len(reps))
	}
	failed := map[string]bool{}
	for _, r := range reps {
		if r.Err != nil {
			failed[r.Country+"/"+r.Level] = true
			continue
		}
		if r.Features == 0 || r.Oversize {
			t.Errorf("%s/%s = %+v", r.Country, r.Level, r)
		}
	}
	if len(failed) != 2 || !failed["FRA/ADM2"] || !failed["USA/ADM1"] {
		t.Errorf("failed = %v", failed)
	}
}

func TestWriteSplit(t *testing.T) {
	recs, err := search.ParseIndex([]byte(fixture.SearchIndex))
	if err != nil {
		t.Fatal(err)
	}
	m, files := search.Split(recs, fixture.Catalog(), nil)
	dir := t.TempDir()
	n, err := writeSplit(dir, m, files)
	if err != nil || n != 2 {
		t.Fatalf("writeSplit = %d, %v", n, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, search.ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	var back search.Manifest
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Continents["Europe"].Count != 3 {
		t.Errorf("manifest = %+v", back)
	}
	loaded, err := search.Load(context.Background(), datasource.Dir{Root: dir})
	if err != nil || len(loaded) != len(recs) {
		t.Errorf("Load = %d, %v", len(loaded), err)
	}
}
