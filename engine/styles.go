package engine

import (
	iface "FaceSyncServer/interface"
	"math"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

type styleFunc func(style *iface.Style, box iface.DetectionBox, rng iface.RandSource)

var styleTable = map[iface.Filter]styleFunc{
	iface.FilterCyberpunk: cyberpunkStyle,
	iface.FilterRainbow:   rainbowStyle,
	iface.FilterMatrix:    matrixStyle,
	iface.FilterNeon:      neonStyle,
	iface.FilterHologram:  hologramStyle,
}

var overlayTable = map[iface.Filter]iface.Overlay{
	iface.FilterCyberpunk: {Tint: "#ff00ff", Opacity: 0.15, Blend: "screen"},
	iface.FilterRainbow:   {Tint: "#ffff00", Opacity: 0.1, Blend: "overlay"},
	iface.FilterMatrix:    {Tint: "#00ff00", Opacity: 0.2, Blend: "multiply"},
	iface.FilterNeon:      {Tint: "#00ffff", Opacity: 0.15, Blend: "screen"},
	iface.FilterHologram:  {Tint: "#0080ff", Opacity: 0.2, Blend: "screen"},
}

// DefaultStyle 是不带滤镜时检测框的样式
func DefaultStyle() iface.Style {
	return iface.Style{
		BorderColor: DefaultBorderColor,
		BorderWidth: DefaultBorderWidth,
		Opacity:     1,
	}
}

// StyleFor 查表得到滤镜样式；表里没有的滤镜（包括 normal）只返回默认样式
func StyleFor(filter iface.Filter, box iface.DetectionBox, rng iface.RandSource) iface.Style {
	style := DefaultStyle()
	if fn, ok := styleTable[filter]; ok {
		fn(&style, box, rng)
	}
	return style
}

// OverlayFor 返回整帧叠加层，normal 为空叠加
func OverlayFor(filter iface.Filter) iface.Overlay {
	if o, ok := overlayTable[filter]; ok {
		return o
	}
	return iface.Overlay{}
}

func cyberpunkStyle(style *iface.Style, _ iface.DetectionBox, _ iface.RandSource) {
	style.BorderColor = "#ff00ff"
	style.GlowColor = "#ff00ff"
	style.GlowRadius = 20
	style.InsetGlowColor = "#00ffff"
	style.InsetGlowRadius = 20
}

// RainbowHue 每个框错开 120 度
func RainbowHue(index int) float64 {
	return math.Mod(float64(index)*120, 360)
}

func rainbowStyle(style *iface.Style, box iface.DetectionBox, _ iface.RandSource) {
	c := colorful.Hsl(RainbowHue(box.Index), 1, 0.5).Hex()
	style.BorderColor = c
	style.GlowColor = c
	style.GlowRadius = 15
	style.Animation = "rainbow-border"
}

func matrixStyle(style *iface.Style, box iface.DetectionBox, rng iface.RandSource) {
	style.BorderColor = "#00ff00"
	style.GlowColor = "#00ff00"
	style.GlowRadius = 15
	style.Glyphs = make([]iface.Glyph, GlyphsPerBox)
	for i := range style.Glyphs {
		idx := int(rng.Float64() * float64(len(matrixAlphabet)))
		style.Glyphs[i] = iface.Glyph{
			Char:     string(matrixAlphabet[idx]),
			OffsetX:  math.Mod(float64(box.Index*30+i*30), 100),
			Delay:    time.Duration(i) * GlyphStagger,
			Lifetime: GlyphLifetime,
		}
	}
}

func neonStyle(style *iface.Style, _ iface.DetectionBox, _ iface.RandSource) {
	style.BorderColor = "#00ffff"
	style.GlowColor = "#00ffff"
	style.GlowRadius = 30
	style.BorderWidth = 3
	style.Animation = "neon-pulse"
}

func hologramStyle(style *iface.Style, _ iface.DetectionBox, _ iface.RandSource) {
	style.BorderColor = "#00ffff"
	style.GlowColor = "#0080ff"
	style.GlowRadius = 10
	style.Opacity = 0.6
	style.Animation = "hologram-flicker"
}
