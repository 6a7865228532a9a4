package content

import (
	"context"
	"log/slog"

	"boundary-map/internal/catalog"
	"boundary-map/internal/feature"
	"boundary-map/internal/logger"
	"boundary-map/internal/metrics"
	"boundary-map/internal/render"

	"github.com/paulmach/orb"
)

// PopupShower：渲染器的弹窗能力
type PopupShower interface {
	ShowPopup(p render.Popup)
}

// 文档注释：点击单元 → 弹窗载荷
// 背景：术语来自目录（缺失回退为层级代码），内容来自内容库（缺失或出错视为空记录）。
// 约束：图片与视频各只取第一项；不返回错误，内容库故障仅记录日志。
type Resolver struct {
	cat   *catalog.Catalog
	store Store
	out   PopupShower
	log   *slog.Logger
}

func NewResolver(cat *catalog.Catalog, store Store, out PopupShower) *Resolver {
	return &Resolver{cat: cat, store: store, out: out, log: logger.Component("content")}
}

// Payload：构造载荷但不显示
func (r *Resolver) Payload(ctx context.Context, u feature.Unit, at orb.Point) render.Popup {
	term := u.Level
	if r.cat != nil {
		term = r.cat.TermOr(u.Country, u.Level)
	}
	p := render.Popup{At: at, Name: u.Name, Level: u.Level, Term: term, Country: u.Country}
	rec := r.lookup(ctx, u)
	p.Description = rec.Description
	if len(rec.Images) > 0 {
		p.Image = rec.Images[0]
	}
	if len(rec.Videos) > 0 {
		p.Video = rec.Videos[0]
	}
	return p
}

// Show：构造载荷并请求渲染器在点击位置显示
func (r *Resolver) Show(ctx context.Context, u feature.Unit, at orb.Point) render.Popup {
	p := r.Payload(ctx, u, at)
	if r.out != nil {
		r.out.ShowPopup(p)
	}
	return p
}

func (r *Resolver) lookup(ctx context.Context, u feature.Unit) Record {
	if r.store == nil {
		metrics.ContentLookupsTotal.WithLabelValues("missing").Inc()
		return Record{}
	}
	rec, ok, err := r.store.Lookup(ctx, u.Country, u.Level, u.Name)
	switch {
	case err != nil:
		metrics.ContentLookupsTotal.WithLabelValues("error").Inc()
		r.log.Warn("content_lookup_fail", "iso", u.Country, "level", u.Level, "unit", u.Name, "error", err)
		return Record{}
	case !ok:
		metrics.ContentLookupsTotal.WithLabelValues("missing").Inc()
		return Record{}
	}
	metrics.ContentLookupsTotal.WithLabelValues("found").Inc()
	return rec
}
