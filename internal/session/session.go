// 包 session：访问者地图会话（每个会话一套激活状态与无头场景）
package session

import (
	"context"
	"sync"
	"time"

	"boundary-map/internal/catalog"
	"boundary-map/internal/content"
	"boundary-map/internal/feature"
	"boundary-map/internal/layers"
	"boundary-map/internal/navigator"
	"boundary-map/internal/render"
	"boundary-map/internal/render/scene"

	"github.com/paulmach/orb"
)

// Deps：所有会话共享的只读依赖
type Deps struct {
	Catalog *catalog.Catalog
	Data    layers.Datasets
	Content content.Store
	Zoom    float64
}

// ClickResult：一次点击的解析结果
type ClickResult struct {
	Unit  feature.Unit `json:"unit"`
	Popup render.Popup `json:"popup"`
}

type Session struct {
	ID      string
	Created time.Time

	Scene     *scene.Scene
	Layers    *layers.Orchestrator
	Features  *feature.Resolver
	Content   *content.Resolver
	Navigator *navigator.Navigator

	clickMu sync.Mutex // 串行化同一会话的点击分发
	mu      sync.Mutex
	last    *ClickResult
}

func newSession(id string, d Deps) *Session {
	s := &Session{ID: id, Created: time.Now(), Scene: scene.New()}
	s.Features = feature.NewResolver(s.Scene)
	s.Content = content.NewResolver(d.Catalog, d.Content, s.Scene)
	s.Layers = layers.New(d.Catalog, d.Data, s.Scene, s.onClick)
	s.Navigator = navigator.New(s.Layers, s.Scene, d.Zoom)
	return s
}

// onClick：面层点击 → 最精细单元 → 内容弹窗 + 高亮
func (s *Session) onClick(ctx context.Context, ev render.ClickEvent) {
	u, ok := s.Features.Resolve(ev.Point, s.Layers.FillLayers())
	if !ok {
		return
	}
	p := s.Content.Show(ctx, u, ev.Point)
	s.Scene.Highlight(&scene.Selection{Name: u.Name, Level: u.Level, Country: u.Country})
	s.mu.Lock()
	s.last = &ClickResult{Unit: u, Popup: p}
	s.mu.Unlock()
}

// Click：在场景中分发点击；未命中任何激活层级时关闭弹窗与高亮并返回 nil
func (s *Session) Click(ctx context.Context, pt orb.Point) *ClickResult {
	s.clickMu.Lock()
	defer s.clickMu.Unlock()
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
	if !s.Scene.Click(ctx, pt) {
		s.Scene.ClosePopup()
		s.Scene.Highlight(nil)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Hover：指针移动，返回当前光标
func (s *Session) Hover(pt orb.Point) string {
	s.Scene.Hover(pt)
	return s.Scene.Snapshot().Cursor
}

type View struct {
	ID    string         `json:"id"`
	State layers.State   `json:"state"`
	Scene scene.Snapshot `json:"scene"`
}

func (s *Session) View() View {
	return View{ID: s.ID, State: s.Layers.Snapshot(), Scene: s.Scene.Snapshot()}
}
