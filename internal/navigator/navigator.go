// 包 navigator：搜索结果跳转（选择国家 → 移动相机 → 开启层级）
package navigator

import (
	"context"
	"fmt"
	"strings"

	"boundary-map/internal/logger"
	"boundary-map/internal/render"
	"boundary-map/internal/search"
)

const DefaultZoom = 8

// Layers：编排器中跳转所需的部分
type Layers interface {
	Current() string
	SelectCountry(ctx context.Context, iso string) error
	SetLevelActive(ctx context.Context, iso, level string, enabled bool) error
}

// Camera：渲染器相机
type Camera interface {
	FlyTo(v render.View)
}

type Navigator struct {
	layers Layers
	camera Camera
	zoom   float64
}

func New(l Layers, c Camera, zoom float64) *Navigator {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &Navigator{layers: l, camera: c, zoom: zoom}
}

// Navigate：国家不同先切换（失败则中止），再飞到记录中心并开启其层级
// 约束：不会关闭最粗层级；层级开启失败时相机已移动，错误原样返回
func (n *Navigator) Navigate(ctx context.Context, rec search.Record) error {
	rec.ISO = strings.ToUpper(strings.TrimSpace(rec.ISO))
	if rec.ISO == "" || rec.Level == "" {
		return fmt.Errorf("navigate %q: record missing iso or level", rec.Name)
	}
	if n.layers.Current() != rec.ISO {
		if err := n.layers.SelectCountry(ctx, rec.ISO); err != nil {
			return fmt.Errorf("navigate %s: %w", rec.ID, err)
		}
	}
	n.camera.FlyTo(render.View{Center: rec.Center, Zoom: n.zoom})
	if err := n.layers.SetLevelActive(ctx, rec.ISO, rec.Level, true); err != nil {
		return fmt.Errorf("navigate %s: %w", rec.ID, err)
	}
	logger.L().Debug("navigate_ok", "id", rec.ID, "iso", rec.ISO, "level", rec.Level)
	return nil
}
