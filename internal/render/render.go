// 包 render：地图渲染器契约
//
// 文档注释：编排器与解析器只通过 Renderer 接口驱动地图；浏览器地图与进程内 scene 均实现该契约。
// 约束：QueryFeatures 按绘制顺序自顶向下返回命中；图层 ID 全局唯一；删除数据源前须先删除引用它的图层。
package render

import (
	"context"
	"errors"

	"boundary-map/internal/boundary"

	"github.com/paulmach/orb"
)

var (
	ErrSourceExists   = errors.New("render: source already exists")
	ErrSourceNotFound = errors.New("render: source not found")
	ErrSourceInUse    = errors.New("render: source still referenced by a layer")
	ErrLayerExists    = errors.New("render: layer already exists")
	ErrLayerNotFound  = errors.New("render: layer not found")
)

type LayerKind string

const (
	KindFill LayerKind = "fill"
	KindLine LayerKind = "line"
)

// LayerSpec：绘制图层描述；Country / Level 仅作元数据
type LayerSpec struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Kind    LayerKind `json:"kind"`
	Country string    `json:"country,omitempty"`
	Level   string    `json:"level,omitempty"`
}

// View：相机目标
type View struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Hit：点查询命中的单个要素
type Hit struct {
	LayerID string `json:"layer"`
	Name    string `json:"name"`
	Level   string `json:"level"`
	Country string `json:"iso"`
}

// Popup：弹窗载荷；媒体最多各一项
type Popup struct {
	At          orb.Point `json:"at"`
	Name        string    `json:"name"`
	Level       string    `json:"level"`
	Term        string    `json:"term"`
	Country     string    `json:"iso"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Video       string    `json:"video,omitempty"`
}

type ClickEvent struct {
	LayerID string
	Point   orb.Point
}

type HoverEvent struct {
	LayerID string
	Point   orb.Point
	Enter   bool
}

type ClickHandler func(ctx context.Context, ev ClickEvent)

type HoverHandler func(ev HoverEvent)

type Renderer interface {
	AddSource(id string, ds *boundary.Dataset) error
	RemoveSource(id string) error
	AddLayer(spec LayerSpec, beforeID string) error
	RemoveLayer(id string) error
	SetLayerVisibility(id string, visible bool) error
	QueryFeatures(pt orb.Point, layerIDs []string) []Hit
	FlyTo(v View)
	OnClick(layerID string, h ClickHandler)
	OffClick(layerID string)
	OnHover(layerID string, h HoverHandler)
	OffHover(layerID string)
	SetCursor(cursor string)
	ShowPopup(p Popup)
}

// 图层 ID 约定：数据源 boundary-<ISO>-<LEVEL>，面层 -fill，轮廓层 -line
func FillLayerID(source string) string { return source + "-fill" }

func LineLayerID(source string) string { return source + "-line" }
