package session

import (
	iface "FaceSyncServer/interface"
	"errors"
	"time"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrUnsupportedDevice = errors.New("camera not supported on this device")
	ErrNoCapacity        = errors.New("no available session slots")
	ErrNotFound          = errors.New("session not found")
	ErrAlreadyStreaming  = errors.New("session already streaming")
)

type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusActive        Status = "active"
	StatusDenied        Status = "denied"
	StatusStopped       Status = "stopped"
	StatusFilterChanged Status = "filter_changed"
)

type EventType string

const (
	EventStatus      EventType = "status"
	EventFrame       EventType = "frame"
	EventGlyphSpawn  EventType = "glyph_spawn"
	EventGlyphExpire EventType = "glyph_expire"
	EventError       EventType = "error"
)

type StatusMessage struct {
	Kind Status `json:"kind"`
	Text string `json:"text"`
}

// Frame 是一次 tick 的全部检测框，客户端收到后整体替换旧框
type Frame struct {
	Seq    uint64               `json:"seq"`
	Time   float64              `json:"time"`
	Filter iface.Filter         `json:"filter"`
	Boxes  []iface.DetectionBox `json:"boxes"`
}

// LiveGlyph 是已出现、尚未过期的 matrix 字符。
// X/Y/Size 取自所属检测框，OffsetX 为框宽百分比。
type LiveGlyph struct {
	ID       uint64        `json:"id"`
	FrameSeq uint64        `json:"frameSeq"`
	Char     string        `json:"char"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	Size     float64       `json:"size"`
	OffsetX  float64       `json:"offsetX"`
	Lifetime time.Duration `json:"lifetime"`
}

type Event struct {
	Type   EventType      `json:"type"`
	Status *StatusMessage `json:"status,omitempty"`
	Frame  *Frame         `json:"frame,omitempty"`
	Glyph  *LiveGlyph     `json:"glyph,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type Snapshot struct {
	ID           string       `json:"id"`
	Streaming    bool         `json:"streaming"`
	Filter       iface.Filter `json:"filter"`
	Frame        *Frame       `json:"frame,omitempty"`
	LiveGlyphs   int          `json:"liveGlyphs"`
	PendingTasks int          `json:"pendingTasks"`
	Ticks        uint64       `json:"ticks"`
	Subscribers  int          `json:"subscribers"`
	LastActive   time.Time    `json:"lastActive"`
}
