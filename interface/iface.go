package iface

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Filter string

const (
	FilterNormal    Filter = "normal"
	FilterCyberpunk Filter = "cyberpunk"
	FilterRainbow   Filter = "rainbow"
	FilterMatrix    Filter = "matrix"
	FilterNeon      Filter = "neon"
	FilterHologram  Filter = "hologram"
)

var ErrUnknownFilter = errors.New("unknown filter")

// Filters 按界面按钮顺序列出全部滤镜
var Filters = []Filter{
	FilterNormal,
	FilterCyberpunk,
	FilterRainbow,
	FilterMatrix,
	FilterNeon,
	FilterHologram,
}

func ParseFilter(name string) (Filter, error) {
	for _, f := range Filters {
		if string(f) == name {
			return f, nil
		}
	}
	return FilterNormal, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}

// Glyph 是 matrix 滤镜附带的下落字符，Delay 后出现，Lifetime 后自行移除
type Glyph struct {
	Char     string        `json:"char"`
	OffsetX  float64       `json:"offsetX"`
	Delay    time.Duration `json:"delay"`
	Lifetime time.Duration `json:"lifetime"`
}

type Style struct {
	BorderColor     string  `json:"borderColor"`
	BorderWidth     int     `json:"borderWidth"`
	GlowColor       string  `json:"glowColor,omitempty"`
	GlowRadius      float64 `json:"glowRadius,omitempty"`
	InsetGlowColor  string  `json:"insetGlowColor,omitempty"`
	InsetGlowRadius float64 `json:"insetGlowRadius,omitempty"`
	Opacity         float64 `json:"opacity"`
	Animation       string  `json:"animation,omitempty"`
	Glyphs          []Glyph `json:"glyphs,omitempty"`
}

// DetectionBox X/Y 为画面宽高百分比，Size 为像素
type DetectionBox struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Style Style   `json:"style"`
}

// Overlay 是整帧叠加层
type Overlay struct {
	Tint    string  `json:"tint,omitempty"`
	Opacity float64 `json:"opacity"`
	Blend   string  `json:"blend,omitempty"`
}

// RandSource 返回 [0,1) 均匀分布；*rand.Rand 满足此接口
type RandSource interface {
	Float64() float64
}

type Simulator interface {
	Tick(currentTimeSeconds float64, filter Filter, rng RandSource) []DetectionBox
}

type Permission string

const (
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionUnsupported Permission = "unsupported"
)

type Camera interface {
	Start(ctx context.Context, p Permission) error
	Stop()
	Streaming() bool
}
