package layers

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"boundary-map/internal/boundary"
	"boundary-map/internal/catalog"
	"boundary-map/internal/fixture"
	"boundary-map/internal/render"
	"boundary-map/internal/render/scene"
)

const (
	fraADM1 = "Europe/FRA/FRA_ADM1_Region.geojson"
	fraADM2 = "Europe/FRA/FRA_ADM2_Department.geojson"
)

type harness struct {
	orch    *Orchestrator
	scene   *scene.Scene
	fetcher *fixture.Fetcher
	cache   *boundary.Cache
	clicks  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{scene: scene.New(), fetcher: fixture.NewFetcher()}
	h.cache = boundary.NewCache(h.fetcher, time.Second)
	h.orch = New(fixture.Catalog(), h.cache, h.scene, func(ctx context.Context, ev render.ClickEvent) { h.clicks++ })
	return h
}

func TestSelectCountryActivatesLowestLevel(t *testing.T) {
	h := newHarness(t)
	if err := h.orch.SelectCountry(context.Background(), "FRA"); err != nil {
		t.Fatalf("SelectCountry: %v", err)
	}
	if got := h.orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0"}) {
		t.Fatalf("active = %v, want [ADM0]", got)
	}
	snap := h.scene.Snapshot()
	if snap.Camera.Zoom != 5 || snap.Camera.Center[0] != 2.2137 {
		t.Errorf("camera = %+v, want FRA default view", snap.Camera)
	}
	want := []string{"boundary-FRA-ADM0-fill", "boundary-FRA-ADM0-line"}
	if got := h.scene.LayerIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("layers = %v, want %v", got, want)
	}
	if h.orch.Current() != "FRA" {
		t.Errorf("Current = %q", h.orch.Current())
	}
}

func TestSelectUnknownCountry(t *testing.T) {
	h := newHarness(t)
	_ = h.orch.SelectCountry(context.Background(), "FRA")
	err := h.orch.SelectCountry(context.Background(), "ATL")
	if !errors.Is(err, catalog.ErrUnknownCountry) {
		t.Fatalf("err = %v, want ErrUnknownCountry", err)
	}
	if h.orch.Current() != "FRA" || len(h.orch.ActiveLevels()) != 1 {
		t.Errorf("state should be untouched: %+v", h.orch.Snapshot())
	}
}

func TestReselectResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM2", true)
	if err := h.orch.SelectCountry(ctx, "fra"); err != nil {
		t.Fatal(err)
	}
	if got := h.orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0"}) {
		t.Errorf("active after reselect = %v", got)
	}
	if n := len(h.scene.LayerIDs()); n != 2 {
		t.Errorf("layers after reselect = %d, want 2", n)
	}
}

func TestToggleOnOffOnNoDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	for _, on := range []bool{true, true, false, false, true} {
		if err := h.orch.SetLevelActive(ctx, "FRA", "ADM1", on); err != nil {
			t.Fatalf("SetLevelActive(%v): %v", on, err)
		}
	}
	fills, lines := 0, 0
	for _, id := range h.scene.LayerIDs() {
		switch id {
		case "boundary-FRA-ADM1-fill":
			fills++
		case "boundary-FRA-ADM1-line":
			lines++
		}
	}
	if fills != 1 || lines != 1 {
		t.Errorf("fill=%d line=%d, want 1/1", fills, lines)
	}
	if n := h.fetcher.Calls(fraADM1); n != 1 {
		t.Errorf("fetch calls = %d, dataset should stay cached", n)
	}
	if _, ok := h.scene.Source("boundary-FRA-ADM1"); !ok {
		t.Error("source should exist while active")
	}
}

func TestDisableRemovesLayersKeepsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM1", true)
	if err := h.orch.SetLevelActive(ctx, "FRA", "ADM1", false); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.scene.Source("boundary-FRA-ADM1"); ok {
		t.Error("source should be removed")
	}
	if _, ok := h.cache.Peek(boundary.Key{Country: "FRA", Level: "ADM1"}); !ok {
		t.Error("dataset should stay cached")
	}
	if snap := h.scene.Snapshot(); len(snap.Layers) != 2 {
		t.Errorf("layers = %+v", snap.Layers)
	}
}

func TestDrawOrderIndependentOfActivationOrder(t *testing.T) {
	orders := [][]string{
		{"ADM1", "ADM2"},
		{"ADM2", "ADM1"},
	}
	want := []string{
		"boundary-FRA-ADM0-fill", "boundary-FRA-ADM0-line",
		"boundary-FRA-ADM1-fill", "boundary-FRA-ADM1-line",
		"boundary-FRA-ADM2-fill", "boundary-FRA-ADM2-line",
	}
	for _, order := range orders {
		h := newHarness(t)
		ctx := context.Background()
		_ = h.orch.SelectCountry(ctx, "FRA")
		for _, lvl := range order {
			if err := h.orch.SetLevelActive(ctx, "FRA", lvl, true); err != nil {
				t.Fatal(err)
			}
		}
		if got := h.scene.LayerIDs(); !reflect.DeepEqual(got, want) {
			t.Errorf("order %v: layers = %v", order, got)
		}
	}

	// 关闭最粗层级后重新开启，应回到最底部
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM2", true)
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM0", false)
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM1", true)
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM0", true)
	if got := h.scene.LayerIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("re-enable ADM0: layers = %v", got)
	}
}

func TestLevelErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.orch.SetLevelActive(ctx, "FRA", "ADM1", true); !errors.Is(err, ErrCountryNotSelected) {
		t.Errorf("no country err = %v", err)
	}
	_ = h.orch.SelectCountry(ctx, "FRA")
	if err := h.orch.SetLevelActive(ctx, "USA", "ADM1", true); !errors.Is(err, ErrCountryNotSelected) {
		t.Errorf("other country err = %v", err)
	}
	if err := h.orch.SetLevelActive(ctx, "FRA", "ADM7", true); !errors.Is(err, catalog.ErrUnknownLevel) {
		t.Errorf("unknown level err = %v", err)
	}
}

func TestFetchFailureLeavesLevelInactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	h.fetcher.Fail(fraADM1, errors.New("connection reset"))
	err := h.orch.SetLevelActive(ctx, "FRA", "ADM1", true)
	var fe *boundary.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *boundary.FetchError", err)
	}
	if fe.Path != fraADM1 {
		t.Errorf("FetchError.Path = %q", fe.Path)
	}
	if got := h.orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0"}) {
		t.Errorf("active = %v", got)
	}
	if n := len(h.scene.LayerIDs()); n != 2 {
		t.Errorf("layers = %d, want only ADM0", n)
	}
	if st := h.orch.Snapshot(); len(st.Pending) != 0 {
		t.Errorf("pending = %v", st.Pending)
	}
	// 不自动重试；用户再次开启时重新获取
	h.fetcher.Fail(fraADM1, nil)
	if err := h.orch.SetLevelActive(ctx, "FRA", "ADM1", true); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if n := h.fetcher.Calls(fraADM1); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}

func TestStaleAfterDisable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	release := h.fetcher.Hold(fraADM2)
	done := make(chan error, 1)
	go func() { done <- h.orch.SetLevelActive(ctx, "FRA", "ADM2", true) }()
	waitPending(t, h.orch, "ADM2")
	if err := h.orch.SetLevelActive(ctx, "FRA", "ADM2", false); err != nil {
		t.Fatal(err)
	}
	release()
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if got := h.orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0"}) {
		t.Errorf("active = %v", got)
	}
}

func TestStaleAfterCountryChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	release := h.fetcher.Hold(fraADM1)
	done := make(chan error, 1)
	go func() { done <- h.orch.SetLevelActive(ctx, "FRA", "ADM1", true) }()
	waitPending(t, h.orch, "ADM1")
	if err := h.orch.SelectCountry(ctx, "USA"); err != nil {
		t.Fatal(err)
	}
	release()
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	for _, id := range h.scene.LayerIDs() {
		if id == "boundary-FRA-ADM1-fill" {
			t.Fatal("stale FRA layer attached after switching to USA")
		}
	}
	if h.orch.Current() != "USA" {
		t.Errorf("Current = %q", h.orch.Current())
	}
}

func TestConcurrentEnableSingleAttach(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	release := h.fetcher.Hold(fraADM1)
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.orch.SetLevelActive(ctx, "FRA", "ADM1", true)
		}(i)
	}
	waitPending(t, h.orch, "ADM1")
	time.Sleep(10 * time.Millisecond)
	release()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if n := len(h.scene.LayerIDs()); n != 4 {
		t.Errorf("layers = %v", h.scene.LayerIDs())
	}
	if n := h.fetcher.Calls(fraADM1); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestCancelledPeerKeepsSharedActivation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	release := h.fetcher.Hold(fraADM1)
	cctx, cancel := context.WithCancel(ctx)
	errA, errB := make(chan error, 1), make(chan error, 1)
	go func() { errA <- h.orch.SetLevelActive(cctx, "FRA", "ADM1", true) }()
	go func() { errB <- h.orch.SetLevelActive(ctx, "FRA", "ADM1", true) }()
	waitWaiters(t, h.orch, "ADM1", 2)
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: %v", err)
	}
	release()
	if err := <-errB; err != nil {
		t.Fatalf("remaining caller: %v", err)
	}
	if got := h.orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0", "ADM1"}) {
		t.Errorf("active = %v", got)
	}
	if st := h.orch.Snapshot(); len(st.Pending) != 0 {
		t.Errorf("pending = %v", st.Pending)
	}
	if n := h.fetcher.Calls(fraADM1); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestConcurrentEnableSharesFetchFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	h.fetcher.Fail(fraADM1, errors.New("boom"))
	release := h.fetcher.Hold(fraADM1)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.orch.SetLevelActive(ctx, "FRA", "ADM1", true)
		}(i)
	}
	waitWaiters(t, h.orch, "ADM1", 2)
	time.Sleep(10 * time.Millisecond)
	release()
	wg.Wait()
	for i, err := range errs {
		var fe *boundary.FetchError
		if !errors.As(err, &fe) || errors.Is(err, ErrStale) {
			t.Errorf("caller %d: %v, want the shared FetchError", i, err)
		}
	}
	if got := h.orch.ActiveLevels(); !reflect.DeepEqual(got, []string{"ADM0"}) {
		t.Errorf("active = %v", got)
	}
	if st := h.orch.Snapshot(); len(st.Pending) != 0 {
		t.Errorf("pending = %v", st.Pending)
	}
	if n := h.fetcher.Calls(fraADM1); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func waitWaiters(t *testing.T, o *Orchestrator, level string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		at := o.tokens[level]
		ok := at != nil && at.waiters >= n
		o.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%s never reached %d waiters", level, n)
}

func TestClickAndHoverRegistered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.orch.SelectCountry(ctx, "FRA")
	h.scene.Hover(orbPoint(5, 45))
	if got := h.scene.Snapshot().Cursor; got != "pointer" {
		t.Errorf("cursor = %q", got)
	}
	h.scene.Hover(orbPoint(50, 50))
	if got := h.scene.Snapshot().Cursor; got != "" {
		t.Errorf("cursor after leave = %q", got)
	}
	if !h.scene.Click(ctx, orbPoint(5, 45)) || h.clicks != 1 {
		t.Errorf("click not dispatched, clicks = %d", h.clicks)
	}
	if got := h.orch.FillLayers(); !reflect.DeepEqual(got, []string{"boundary-FRA-ADM0-fill"}) {
		t.Errorf("FillLayers = %v", got)
	}
	_ = h.orch.SetLevelActive(ctx, "FRA", "ADM0", false)
	if h.scene.Click(ctx, orbPoint(5, 45)) {
		t.Error("click handler should be removed with the level")
	}
}

func waitPending(t *testing.T, o *Orchestrator, level string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, p := range o.Snapshot().Pending {
			if p == level {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("level %s never became pending", level)
}
