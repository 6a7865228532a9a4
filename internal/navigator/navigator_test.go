package navigator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"boundary-map/internal/boundary"
	"boundary-map/internal/catalog"
	"boundary-map/internal/fixture"
	"boundary-map/internal/layers"
	"boundary-map/internal/render/scene"
	"boundary-map/internal/search"

	"github.com/paulmach/orb"
)

func setup(t *testing.T) (*layers.Orchestrator, *scene.Scene, *Navigator) {
	t.Helper()
	sc := scene.New()
	cache := boundary.NewCache(fixture.NewFetcher(), time.Second)
	orch := layers.New(fixture.Catalog(), cache, sc, nil)
	return orch, sc, New(orch, sc, 0)
}

func TestNavigateAcrossCountries(t *testing.T) {
	orch, sc, nav := setup(t)
	ctx := context.Background()
	if err := orch.SelectCountry(ctx, "FRA"); err != nil {
		t.Fatal(err)
	}
	_ = orch.SetLevelActive(ctx, "FRA", "ADM1", true)
	rec := search.Record{ID: "USA_ADM2_Cook_County", Name: "Cook County", ISO: "USA", Level: "ADM2", Center: orb.Point{-88, 41.75}}
	if err := nav.Navigate(ctx, rec); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if got := orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0", "ADM2"}) {
		t.Errorf("active = %v, want [ADM0 ADM2]", got)
	}
	for _, id := range sc.LayerIDs() {
		if len(id) > 12 && id[:12] == "boundary-FRA" {
			t.Errorf("FRA layer left behind: %s", id)
		}
	}
	cam := sc.Snapshot().Camera
	if cam.Zoom != DefaultZoom || cam.Center != rec.Center {
		t.Errorf("camera = %+v", cam)
	}
}

func TestNavigateSameCountryKeepsLevels(t *testing.T) {
	orch, _, nav := setup(t)
	ctx := context.Background()
	_ = orch.SelectCountry(ctx, "FRA")
	_ = orch.SetLevelActive(ctx, "FRA", "ADM1", true)
	if err := nav.Navigate(ctx, search.Record{ID: "p", ISO: "FRA", Level: "ADM2"}); err != nil {
		t.Fatal(err)
	}
	if got := orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0", "ADM1", "ADM2"}) {
		t.Errorf("active = %v", got)
	}
	// 已激活层级再次跳转为无操作
	if err := nav.Navigate(ctx, search.Record{ID: "f", ISO: "FRA", Level: "ADM0"}); err != nil {
		t.Fatal(err)
	}
}

func TestNavigateLowercaseISOKeepsLevels(t *testing.T) {
	orch, _, nav := setup(t)
	ctx := context.Background()
	_ = orch.SelectCountry(ctx, "FRA")
	_ = orch.SetLevelActive(ctx, "FRA", "ADM1", true)
	if err := nav.Navigate(ctx, search.Record{ID: "p", ISO: " fra", Level: "ADM2"}); err != nil {
		t.Fatal(err)
	}
	if got := orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0", "ADM1", "ADM2"}) {
		t.Errorf("active = %v, want ADM1 kept", got)
	}
}

func TestNavigateUnknownCountryAborts(t *testing.T) {
	orch, sc, nav := setup(t)
	ctx := context.Background()
	_ = orch.SelectCountry(ctx, "FRA")
	before := sc.Snapshot().Camera
	err := nav.Navigate(ctx, search.Record{ID: "x", ISO: "ATL", Level: "ADM1", Center: orb.Point{1, 1}})
	if !errors.Is(err, catalog.ErrUnknownCountry) {
		t.Fatalf("err = %v", err)
	}
	if sc.Snapshot().Camera != before {
		t.Error("camera should not move when selection fails")
	}
	if orch.Current() != "FRA" {
		t.Errorf("Current = %q", orch.Current())
	}
}

func TestNavigateIncompleteRecord(t *testing.T) {
	_, _, nav := setup(t)
	if err := nav.Navigate(context.Background(), search.Record{Name: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
