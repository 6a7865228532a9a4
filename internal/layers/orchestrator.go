// 包 layers：层级激活编排（选择国家、开关层级、图层堆叠顺序）
package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"boundary-map/internal/boundary"
	"boundary-map/internal/catalog"
	"boundary-map/internal/logger"
	"boundary-map/internal/metrics"
	"boundary-map/internal/render"
)

var (
	ErrCountryNotSelected = errors.New("layers: country not selected")
	ErrStale              = errors.New("layers: stale activation discarded")
)

// Datasets：数据集获取（通常为共享的 *boundary.Cache）
type Datasets interface {
	Get(ctx context.Context, key boundary.Key, path string) (*boundary.Dataset, error)
}

// 文档注释：层级编排器（一个会话一个）
// 背景：持有激活状态并与渲染器一一对应：层级激活 ⇔ 数据源、面层、轮廓层均存在。
// 约束：状态锁不跨越数据获取；获取完成后按 国家仍选中 / 令牌仍最新 / 尚未激活 复核，过期结果丢弃。
type Orchestrator struct {
	cat     *catalog.Catalog
	data    Datasets
	r       render.Renderer
	onClick render.ClickHandler
	log     *slog.Logger

	mu      sync.Mutex
	country *catalog.Country
	active  map[string]bool
	tokens  map[string]*attempt
}

// attempt：同一层级在途开启的共享令牌；waiters 归零前不移除（成功激活时立即移除）
type attempt struct {
	waiters int
}

func New(cat *catalog.Catalog, data Datasets, r render.Renderer, onClick render.ClickHandler) *Orchestrator {
	return &Orchestrator{
		cat:     cat,
		data:    data,
		r:       r,
		onClick: onClick,
		log:     logger.Component("layers"),
		active:  make(map[string]bool),
		tokens:  make(map[string]*attempt),
	}
}

// SelectCountry：切换国家并激活最粗层级；重复选择当前国家同样重置
func (o *Orchestrator) SelectCountry(ctx context.Context, iso string) error {
	ctry, err := o.cat.Country(iso)
	if err != nil {
		o.log.Warn("select_country_unknown", "iso", iso)
		metrics.CountrySelectionsTotal.WithLabelValues("unknown").Inc()
		return err
	}
	o.mu.Lock()
	o.teardownLocked()
	o.country = ctry
	o.r.FlyTo(render.View{Center: ctry.DefaultView.Center, Zoom: ctry.DefaultView.Zoom})
	o.mu.Unlock()
	o.log.Info("select_country", "iso", ctry.ISO, "levels", len(ctry.Levels))
	lowest, ok := ctry.Lowest()
	if !ok {
		metrics.CountrySelectionsTotal.WithLabelValues("ok").Inc()
		return nil
	}
	if err := o.SetLevelActive(ctx, ctry.ISO, lowest.Code, true); err != nil {
		metrics.CountrySelectionsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.CountrySelectionsTotal.WithLabelValues("ok").Inc()
	return nil
}

// SetLevelActive：开关层级，幂等
func (o *Orchestrator) SetLevelActive(ctx context.Context, iso, code string, enabled bool) error {
	if !enabled {
		return o.deactivate(iso, code)
	}
	return o.activate(ctx, iso, code)
}

func (o *Orchestrator) lookupLocked(iso, code string) (*catalog.Country, catalog.Level, error) {
	if o.country == nil || o.country.ISO != normISO(iso) {
		return nil, catalog.Level{}, fmt.Errorf("%s: %w", iso, ErrCountryNotSelected)
	}
	lvl, ok := o.country.Level(code)
	if !ok {
		return nil, catalog.Level{}, fmt.Errorf("%s %q: %w", o.country.ISO, code, catalog.ErrUnknownLevel)
	}
	return o.country, lvl, nil
}

func (o *Orchestrator) activate(ctx context.Context, iso, code string) error {
	o.mu.Lock()
	ctry, lvl, err := o.lookupLocked(iso, code)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	if o.active[lvl.Code] {
		o.mu.Unlock()
		metrics.LayerActivationsTotal.WithLabelValues("noop").Inc()
		return nil
	}
	// 同一层级的并发开启共享令牌，先成功者激活，其余视为已激活；失败由每个等待者各自返回
	at, pending := o.tokens[lvl.Code]
	if !pending {
		at = &attempt{}
		o.tokens[lvl.Code] = at
	}
	at.waiters++
	o.mu.Unlock()

	key := boundary.Key{Country: ctry.ISO, Level: lvl.Code}
	path := ctry.DatasetPath(lvl)
	ds, err := o.data.Get(ctx, key, path)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.country != ctry {
		metrics.LayerActivationsTotal.WithLabelValues("stale").Inc()
		o.log.Debug("layer_activation_stale", "key", key.String(), "reason", "country_changed")
		return fmt.Errorf("%s: %w", key, ErrStale)
	}
	if o.active[lvl.Code] {
		metrics.LayerActivationsTotal.WithLabelValues("noop").Inc()
		return nil
	}
	if cur, ok := o.tokens[lvl.Code]; !ok || cur != at {
		metrics.LayerActivationsTotal.WithLabelValues("stale").Inc()
		o.log.Debug("layer_activation_stale", "key", key.String(), "reason", "superseded")
		return fmt.Errorf("%s: %w", key, ErrStale)
	}
	at.waiters--
	if err != nil {
		// 自身取消或共享获取失败：仍有等待者时保留令牌
		if at.waiters == 0 {
			delete(o.tokens, lvl.Code)
		}
		metrics.LayerActivationsTotal.WithLabelValues("failed").Inc()
		o.log.Warn("layer_activation_fail", "key", key.String(), "path", path, "error", err, "waiters", at.waiters)
		return err
	}
	delete(o.tokens, lvl.Code)
	if err := o.attachLocked(ctry, lvl, ds); err != nil {
		metrics.LayerActivationsTotal.WithLabelValues("failed").Inc()
		o.log.Error("layer_attach_fail", "key", key.String(), "error", err)
		return err
	}
	o.active[lvl.Code] = true
	metrics.LayerActivationsTotal.WithLabelValues("ok").Inc()
	o.log.Info("layer_activated", "key", key.String(), "features", len(ds.Features))
	return nil
}

// attachLocked：添加数据源、面层、轮廓层并注册交互；任一步失败回滚已添加部分
func (o *Orchestrator) attachLocked(ctry *catalog.Country, lvl catalog.Level, ds *boundary.Dataset) error {
	src := boundary.Key{Country: ctry.ISO, Level: lvl.Code}.SourceID()
	fill, line := render.FillLayerID(src), render.LineLayerID(src)
	before := o.beforeLocked(ctry, lvl.Code)
	if err := o.r.AddSource(src, ds); err != nil {
		return err
	}
	if err := o.r.AddLayer(render.LayerSpec{ID: fill, Source: src, Kind: render.KindFill, Country: ctry.ISO, Level: lvl.Code}, before); err != nil {
		_ = o.r.RemoveSource(src)
		return err
	}
	if err := o.r.AddLayer(render.LayerSpec{ID: line, Source: src, Kind: render.KindLine, Country: ctry.ISO, Level: lvl.Code}, before); err != nil {
		_ = o.r.RemoveLayer(fill)
		_ = o.r.RemoveSource(src)
		return err
	}
	if o.onClick != nil {
		o.r.OnClick(fill, o.onClick)
	}
	o.r.OnHover(fill, o.hover)
	return nil
}

// beforeLocked：下一个更精细且已激活层级的面层 ID；无则置顶
func (o *Orchestrator) beforeLocked(ctry *catalog.Country, code string) string {
	seen := false
	for _, l := range ctry.Levels {
		if l.Code == code {
			seen = true
			continue
		}
		if seen && o.active[l.Code] {
			return render.FillLayerID(boundary.Key{Country: ctry.ISO, Level: l.Code}.SourceID())
		}
	}
	return ""
}

func (o *Orchestrator) hover(ev render.HoverEvent) {
	if ev.Enter {
		o.r.SetCursor("pointer")
		return
	}
	o.r.SetCursor("")
}

func (o *Orchestrator) deactivate(iso, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctry, lvl, err := o.lookupLocked(iso, code)
	if err != nil {
		return err
	}
	delete(o.tokens, lvl.Code)
	if !o.active[lvl.Code] {
		return nil
	}
	o.detachLocked(ctry.ISO, lvl.Code)
	o.log.Info("layer_deactivated", "iso", ctry.ISO, "level", lvl.Code)
	return nil
}

func (o *Orchestrator) detachLocked(iso, code string) {
	src := boundary.Key{Country: iso, Level: code}.SourceID()
	fill, line := render.FillLayerID(src), render.LineLayerID(src)
	o.r.OffClick(fill)
	o.r.OffHover(fill)
	for _, id := range []string{line, fill} {
		if err := o.r.RemoveLayer(id); err != nil {
			o.log.Warn("layer_remove_fail", "layer", id, "error", err)
		}
	}
	if err := o.r.RemoveSource(src); err != nil {
		o.log.Warn("source_remove_fail", "source", src, "error", err)
	}
	delete(o.active, code)
	metrics.LayerDeactivationsTotal.Inc()
}

// teardownLocked：移除当前国家全部层级并作废在途令牌
func (o *Orchestrator) teardownLocked() {
	o.tokens = make(map[string]*attempt)
	if o.country == nil {
		return
	}
	for _, l := range o.country.Levels {
		if o.active[l.Code] {
			o.detachLocked(o.country.ISO, l.Code)
		}
	}
	o.active = make(map[string]bool)
}

// Current：当前国家 ISO；未选择为空
func (o *Orchestrator) Current() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.country == nil {
		return ""
	}
	return o.country.ISO
}

// ActiveLevels：按层级顺序返回已激活层级代码
func (o *Orchestrator) ActiveLevels() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeLocked()
}

func (o *Orchestrator) activeLocked() []string {
	out := []string{}
	if o.country == nil {
		return out
	}
	for _, l := range o.country.Levels {
		if o.active[l.Code] {
			out = append(out, l.Code)
		}
	}
	return out
}

// FillLayers：已激活层级的面层 ID（供要素解析）
func (o *Orchestrator) FillLayers() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	if o.country == nil {
		return out
	}
	for _, code := range o.activeLocked() {
		out = append(out, render.FillLayerID(boundary.Key{Country: o.country.ISO, Level: code}.SourceID()))
	}
	return out
}

type State struct {
	Country string   `json:"country"`
	Active  []string `json:"active"`
	Pending []string `json:"pending"`
}

func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := State{Active: o.activeLocked(), Pending: []string{}}
	if o.country == nil {
		return st
	}
	st.Country = o.country.ISO
	for _, l := range o.country.Levels {
		if _, ok := o.tokens[l.Code]; ok {
			st.Pending = append(st.Pending, l.Code)
		}
	}
	return st
}

func normISO(iso string) string { return strings.ToUpper(strings.TrimSpace(iso)) }
