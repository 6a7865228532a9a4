// 包 scene：进程内无头渲染器，实现 render.Renderer
//
// 每个会话持有一个 Scene；浏览器端通过快照镜像其图层、相机与弹窗状态。
package scene

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"boundary-map/internal/boundary"
	"boundary-map/internal/render"

	"github.com/paulmach/orb"
)

type layer struct {
	spec    render.LayerSpec
	visible bool
}

// Selection：当前高亮的行政单元（点击后设置，不影响激活层级）
type Selection struct {
	Name    string `json:"name"`
	Level   string `json:"level"`
	Country string `json:"iso"`
}

type Scene struct {
	mu      sync.Mutex
	sources map[string]*boundary.Dataset
	layers  []layer // 自底向上
	clicks  map[string]render.ClickHandler
	hovers  map[string]render.HoverHandler
	inside  map[string]bool
	camera  render.View
	cursor  string
	popup   *render.Popup
	sel     *Selection
}

var _ render.Renderer = (*Scene)(nil)

func New() *Scene {
	return &Scene{
		sources: make(map[string]*boundary.Dataset),
		clicks:  make(map[string]render.ClickHandler),
		hovers:  make(map[string]render.HoverHandler),
		inside:  make(map[string]bool),
	}
}

func (s *Scene) AddSource(id string, ds *boundary.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("%s: %w", id, render.ErrSourceExists)
	}
	s.sources[id] = ds
	return nil
}

func (s *Scene) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("%s: %w", id, render.ErrSourceNotFound)
	}
	for _, l := range s.layers {
		if l.spec.Source == id {
			return fmt.Errorf("%s used by %s: %w", id, l.spec.ID, render.ErrSourceInUse)
		}
	}
	delete(s.sources, id)
	return nil
}

// Source：数据源对应的数据集
func (s *Scene) Source(id string) (*boundary.Dataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.sources[id]
	return ds, ok
}

// AddLayer：插入到 beforeID 之下；beforeID 为空时置顶
func (s *Scene) AddLayer(spec render.LayerSpec, beforeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(spec.ID) >= 0 {
		return fmt.Errorf("%s: %w", spec.ID, render.ErrLayerExists)
	}
	if _, ok := s.sources[spec.Source]; !ok {
		return fmt.Errorf("layer %s source %s: %w", spec.ID, spec.Source, render.ErrSourceNotFound)
	}
	l := layer{spec: spec, visible: true}
	if beforeID == "" {
		s.layers = append(s.layers, l)
		return nil
	}
	at := s.indexOf(beforeID)
	if at < 0 {
		return fmt.Errorf("before %s: %w", beforeID, render.ErrLayerNotFound)
	}
	s.layers = append(s.layers, layer{})
	copy(s.layers[at+1:], s.layers[at:])
	s.layers[at] = l
	return nil
}

func (s *Scene) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.indexOf(id)
	if at < 0 {
		return fmt.Errorf("%s: %w", id, render.ErrLayerNotFound)
	}
	s.layers = append(s.layers[:at], s.layers[at+1:]...)
	delete(s.inside, id)
	return nil
}

func (s *Scene) SetLayerVisibility(id string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.indexOf(id)
	if at < 0 {
		return fmt.Errorf("%s: %w", id, render.ErrLayerNotFound)
	}
	s.layers[at].visible = visible
	return nil
}

func (s *Scene) indexOf(id string) int {
	for i, l := range s.layers {
		if l.spec.ID == id {
			return i
		}
	}
	return -1
}

// QueryFeatures：自顶向下返回命中；layerIDs 为空时查询全部可见图层
func (s *Scene) QueryFeatures(pt orb.Point, layerIDs []string) []render.Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(pt, layerIDs)
}

func (s *Scene) query(pt orb.Point, layerIDs []string) []render.Hit {
	var want map[string]bool
	if len(layerIDs) > 0 {
		want = make(map[string]bool, len(layerIDs))
		for _, id := range layerIDs {
			want[id] = true
		}
	}
	var out []render.Hit
	for i := len(s.layers) - 1; i >= 0; i-- {
		l := s.layers[i]
		if !l.visible || (want != nil && !want[l.spec.ID]) {
			continue
		}
		ds := s.sources[l.spec.Source]
		if ds == nil {
			continue
		}
		for _, f := range ds.Hits(pt) {
			out = append(out, render.Hit{LayerID: l.spec.ID, Name: f.Name, Level: f.Level, Country: f.Country})
		}
	}
	return out
}

func (s *Scene) FlyTo(v render.View) {
	s.mu.Lock()
	s.camera = v
	s.mu.Unlock()
}

func (s *Scene) OnClick(layerID string, h render.ClickHandler) {
	s.mu.Lock()
	s.clicks[layerID] = h
	s.mu.Unlock()
}

func (s *Scene) OffClick(layerID string) {
	s.mu.Lock()
	delete(s.clicks, layerID)
	s.mu.Unlock()
}

func (s *Scene) OnHover(layerID string, h render.HoverHandler) {
	s.mu.Lock()
	s.hovers[layerID] = h
	s.mu.Unlock()
}

func (s *Scene) OffHover(layerID string) {
	s.mu.Lock()
	delete(s.hovers, layerID)
	delete(s.inside, layerID)
	s.mu.Unlock()
}

func (s *Scene) SetCursor(cursor string) {
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()
}

func (s *Scene) ShowPopup(p render.Popup) {
	s.mu.Lock()
	s.popup = &p
	s.mu.Unlock()
}

// ClosePopup：关闭弹窗
func (s *Scene) ClosePopup() {
	s.mu.Lock()
	s.popup = nil
	s.mu.Unlock()
}

func (s *Scene) Highlight(sel *Selection) {
	s.mu.Lock()
	s.sel = sel
	s.mu.Unlock()
}

// 文档注释：点击分发
// 背景：与浏览器地图一致，一次点击只触发命中图层中最上层且注册了点击处理器的那一个。
// 约束：处理器在锁外执行，可回调 Scene；未命中返回 false。
func (s *Scene) Click(ctx context.Context, pt orb.Point) bool {
	s.mu.Lock()
	var (
		h  render.ClickHandler
		id string
	)
	for i := len(s.layers) - 1; i >= 0 && h == nil; i-- {
		l := s.layers[i]
		reg, ok := s.clicks[l.spec.ID]
		if !ok || !l.visible {
			continue
		}
		if ds := s.sources[l.spec.Source]; ds != nil && len(ds.Hits(pt)) > 0 {
			h, id = reg, l.spec.ID
		}
	}
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(ctx, render.ClickEvent{LayerID: id, Point: pt})
	return true
}

// Hover：指针移动；对进入或离开的图层触发一次处理器
func (s *Scene) Hover(pt orb.Point) {
	type fire struct {
		h  render.HoverHandler
		ev render.HoverEvent
	}
	var fires []fire
	s.mu.Lock()
	for _, l := range s.layers {
		h, ok := s.hovers[l.spec.ID]
		if !ok {
			continue
		}
		in := false
		if ds := s.sources[l.spec.Source]; ds != nil && l.visible {
			in = len(ds.Hits(pt)) > 0
		}
		if in != s.inside[l.spec.ID] {
			s.inside[l.spec.ID] = in
			fires = append(fires, fire{h, render.HoverEvent{LayerID: l.spec.ID, Point: pt, Enter: in}})
		}
	}
	s.mu.Unlock()
	for _, f := range fires {
		f.h(f.ev)
	}
}

type LayerState struct {
	render.LayerSpec
	Visible   bool `json:"visible"`
	Clickable bool `json:"clickable"`
}

// Snapshot：场景的可序列化视图；Layers 自底向上
type Snapshot struct {
	Layers   []LayerState  `json:"layers"`
	Sources  []string      `json:"sources"`
	Camera   render.View   `json:"camera"`
	Cursor   string        `json:"cursor"`
	Popup    *render.Popup `json:"popup,omitempty"`
	Selected *Selection    `json:"selected,omitempty"`
}

func (s *Scene) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Layers: make([]LayerState, 0, len(s.layers)), Sources: make([]string, 0, len(s.sources)), Camera: s.camera, Cursor: s.cursor}
	for _, l := range s.layers {
		_, clickable := s.clicks[l.spec.ID]
		snap.Layers = append(snap.Layers, LayerState{LayerSpec: l.spec, Visible: l.visible, Clickable: clickable})
	}
	for id := range s.sources {
		snap.Sources = append(snap.Sources, id)
	}
	sort.Strings(snap.Sources)
	if s.popup != nil {
		p := *s.popup
		snap.Popup = &p
	}
	if s.sel != nil {
		sel := *s.sel
		snap.Selected = &sel
	}
	return snap
}

// LayerIDs：自底向上的图层 ID
func (s *Scene) LayerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.spec.ID
	}
	return out
}
