package engine

import (
	iface "FaceSyncServer/interface"
	"math"
)

// Recorder 接收每次 tick 的统计，monitor 包实现
type Recorder interface {
	ObserveTick(filter iface.Filter, boxes int)
}

// DetectionChance 返回 t 秒时的检测概率，范围 [0.6, 1.0]
func DetectionChance(currentTimeSeconds float64) float64 {
	return BaseChance + ChanceSwing*math.Sin(currentTimeSeconds*ChanceFrequency)
}

// BoxCount 在已判定检测到人脸后抽取框数量。
// 非 70% 分支仍可能抽到 1，保留原有行为。
func BoxCount(rng iface.RandSource) int {
	if rng.Float64() < SingleBoxChance {
		return 1
	}
	return int(rng.Float64()*MaxBoxes) + 1
}

// Tick 模拟一帧的人脸检测。结果只取决于时间、滤镜和随机源，不保留任何跨帧状态。
func Tick(currentTimeSeconds float64, filter iface.Filter, rng iface.RandSource) []iface.DetectionBox {
	if rng.Float64() >= DetectionChance(currentTimeSeconds) {
		return []iface.DetectionBox{}
	}
	count := BoxCount(rng)
	boxes := make([]iface.DetectionBox, count)
	for i := range boxes {
		boxes[i] = iface.DetectionBox{
			Index: i,
			X:     MinX + rng.Float64()*XSpan,
			Y:     MinY + rng.Float64()*YSpan,
			Size:  MinSize + rng.Float64()*SizeSpan,
		}
	}
	for i := range boxes {
		boxes[i].Style = StyleFor(filter, boxes[i], rng)
	}
	return boxes
}

type Simulator struct {
	recorder Recorder
}

func NewSimulator(recorder Recorder) *Simulator {
	return &Simulator{recorder: recorder}
}

func (s *Simulator) Tick(currentTimeSeconds float64, filter iface.Filter, rng iface.RandSource) []iface.DetectionBox {
	boxes := Tick(currentTimeSeconds, filter, rng)
	if s.recorder != nil {
		s.recorder.ObserveTick(filter, len(boxes))
	}
	return boxes
}

var _ iface.Simulator = (*Simulator)(nil)
