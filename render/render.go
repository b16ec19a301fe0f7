// Package render 把一帧检测框画成预览图，便于在没有浏览器的情况下查看滤镜效果。
package render

import (
	"FaceSyncServer/engine"
	iface "FaceSyncServer/interface"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

const MaxDimension = 4096

var ErrInvalidSize = errors.New("invalid frame size")

var background = color.NRGBA{R: 16, G: 16, B: 24, A: 255}

// 字符标记的像素尺寸
const (
	glyphWidth  = 6
	glyphHeight = 10
)

// Frame 依次绘制背景、滤镜叠加层、光晕、边框和 matrix 字符标记
func Frame(boxes []iface.DetectionBox, filter iface.Filter, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	canvas := imaging.New(width, height, background)

	if ov := engine.OverlayFor(filter); ov.Tint != "" {
		tint, err := parseColor(ov.Tint, 1)
		if err != nil {
			return nil, err
		}
		canvas = imaging.Overlay(canvas, imaging.New(width, height, tint), image.Pt(0, 0), ov.Opacity)
	}

	for _, box := range boxes {
		rect := BoxRect(box, width, height)
		style := box.Style
		if style.GlowColor != "" && style.GlowRadius > 0 {
			glow, err := parseColor(style.GlowColor, style.Opacity)
			if err != nil {
				return nil, err
			}
			layer := image.NewNRGBA(canvas.Bounds())
			strokeRect(layer, rect, style.BorderWidth+2, glow)
			canvas = imaging.Overlay(canvas, blur.Gaussian(layer, style.GlowRadius/4), image.Pt(0, 0), 1)
		}

		border, err := parseColor(style.BorderColor, style.Opacity)
		if err != nil {
			return nil, err
		}
		layer := image.NewNRGBA(canvas.Bounds())
		strokeRect(layer, rect, style.BorderWidth, border)
		if style.InsetGlowColor != "" {
			inset, err := parseColor(style.InsetGlowColor, style.Opacity)
			if err != nil {
				return nil, err
			}
			strokeRect(layer, rect.Inset(style.BorderWidth), 1, inset)
		}
		for _, g := range style.Glyphs {
			gx := rect.Min.X + int(g.OffsetX*float64(rect.Dx())/100)
			fillRect(layer, image.Rect(gx, rect.Min.Y+style.BorderWidth, gx+glyphWidth, rect.Min.Y+style.BorderWidth+glyphHeight), border)
		}
		canvas = imaging.Overlay(canvas, layer, image.Pt(0, 0), 1)
	}
	return canvas, nil
}

func PNG(boxes []iface.DetectionBox, filter iface.Filter, width, height int) ([]byte, error) {
	img, err := Frame(boxes, filter, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// BoxRect 把百分比位置换算成像素矩形，大小本身就是像素
func BoxRect(box iface.DetectionBox, width, height int) image.Rectangle {
	x := int(box.X * float64(width) / 100)
	y := int(box.Y * float64(height) / 100)
	size := int(box.Size)
	return image.Rect(x, y, x+size, y+size)
}

func parseColor(hex string, opacity float64) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("parse color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	return color.NRGBA{R: r, G: g, B: b, A: uint8(opacity*255 + 0.5)}, nil
}

func strokeRect(img *image.NRGBA, r image.Rectangle, width int, c color.NRGBA) {
	if width <= 0 {
		width = 1
	}
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
