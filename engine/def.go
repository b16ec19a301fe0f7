package engine

import "time"

// 检测概率 = BaseChance + ChanceSwing * sin(t * ChanceFrequency)，范围 [0.6, 1.0]
const (
	BaseChance      = 0.8
	ChanceSwing     = 0.2
	ChanceFrequency = 2.0
)

// 框数量：SingleBoxChance 的概率为 1 个，否则在 [1, MaxBoxes] 中再均匀抽一次
const (
	SingleBoxChance = 0.7
	MaxBoxes        = 3
)

// 位置为百分比，大小为像素，区间左闭右开
const (
	MinX     = 20.0
	XSpan    = 60.0
	MinY     = 10.0
	YSpan    = 60.0
	MinSize  = 80.0
	SizeSpan = 40.0
)

const (
	GlyphsPerBox  = 3
	GlyphStagger  = 200 * time.Millisecond
	GlyphLifetime = 2000 * time.Millisecond
)

const DefaultBorderColor = "#00ff88"
const DefaultBorderWidth = 2

var matrixAlphabet = []rune("01アイウエオカキクケコサシスセソタチツテト")
