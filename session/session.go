package session

import (
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	subscriberBuffer     = 64
	statusPublishTimeout = 100 * time.Millisecond
)

type Options struct {
	Simulator     iface.Simulator
	Camera        iface.Camera
	Interval      time.Duration
	DefaultFilter iface.Filter
	// Seed 为 0 时随机生成
	Seed  uint64
	Clock func() time.Time
}

type Session struct {
	ID string

	sim      iface.Simulator
	camera   iface.Camera
	state    *State
	sched    *Scheduler
	rng      *rand.Rand
	clock    func() time.Time
	interval time.Duration

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	lastFrame  *Frame
	seq        uint64
	glyphSeq   uint64
	glyphs     map[uint64]LiveGlyph
	lastActive time.Time

	subMu   sync.RWMutex
	subNext int
	subs    map[int]chan Event
	closed  bool
}

func New(id string, opts Options) *Session {
	if opts.Camera == nil {
		opts.Camera = &ClientCamera{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 60
	}
	if opts.DefaultFilter == "" {
		opts.DefaultFilter = iface.FilterNormal
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Session{
		ID:         id,
		sim:        opts.Simulator,
		camera:     opts.Camera,
		state:      NewState(opts.DefaultFilter),
		sched:      NewScheduler(),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		clock:      opts.Clock,
		interval:   opts.Interval,
		glyphs:     make(map[uint64]LiveGlyph),
		lastActive: opts.Clock(),
		subs:       make(map[int]chan Event),
	}
}

// Start 请求摄像头，成功后开始按帧率 tick。失败时保持停止状态，不自动重试。
func (s *Session) Start(ctx context.Context, p iface.Permission) error {
	s.Touch()
	if s.state.Streaming() {
		return ErrAlreadyStreaming
	}
	s.publishStatus(StatusInitializing, "Initializing camera...")
	if err := s.camera.Start(ctx, p); err != nil {
		s.publishStatus(StatusDenied, fmt.Sprintf("Camera access denied: %v", err))
		logger.Log().Warn("camera start failed", zap.String("sessionID", s.ID), zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyStreaming
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.sched.Reset()
	s.state.setStreaming(true)
	s.mu.Unlock()

	s.publishStatus(StatusActive, "Face detection active")
	logger.Log().Info("session streaming", zap.String("sessionID", s.ID), zap.String("filter", string(s.state.Filter())))
	go s.run(loopCtx, done)
	return nil
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("tick loop panic", zap.String("sessionID", s.ID), zap.Any("panic", r))
			s.publish(Event{Type: EventError, Error: fmt.Sprintf("tick loop stopped: %v", r)})
			s.finish()
		}
	}()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.clock())
		}
	}
}

// tick 只在 run 所在的 goroutine 中调用，rng 不需要加锁
func (s *Session) tick(now time.Time) Frame {
	filter := s.state.Filter()
	t := float64(now.UnixNano()) / float64(time.Second)
	boxes := s.sim.Tick(t, filter, s.rng)

	s.mu.Lock()
	s.seq++
	frame := Frame{Seq: s.seq, Time: t, Filter: filter, Boxes: boxes}
	s.lastFrame = &frame
	s.mu.Unlock()

	s.publish(Event{Type: EventFrame, Frame: &frame})
	for _, box := range boxes {
		for _, g := range box.Style.Glyphs {
			s.scheduleGlyph(frame.Seq, box, g)
		}
	}
	return frame
}

func (s *Session) scheduleGlyph(frameSeq uint64, box iface.DetectionBox, g iface.Glyph) {
	s.sched.After(g.Delay, func() {
		s.mu.Lock()
		s.glyphSeq++
		live := LiveGlyph{
			ID:       s.glyphSeq,
			FrameSeq: frameSeq,
			Char:     g.Char,
			X:        box.X,
			Y:        box.Y,
			Size:     box.Size,
			OffsetX:  g.OffsetX,
			Lifetime: g.Lifetime,
		}
		s.glyphs[live.ID] = live
		s.mu.Unlock()

		s.sched.After(g.Lifetime, func() {
			s.mu.Lock()
			delete(s.glyphs, live.ID)
			s.mu.Unlock()
			s.publish(Event{Type: EventGlyphExpire, Glyph: &live})
		})
		s.publish(Event{Type: EventGlyphSpawn, Glyph: &live})
	})
}

// Stop 停止 tick 循环并取消所有挂起的字符动画，返回时不会再有任何事件产生
func (s *Session) Stop() {
	s.Touch()
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.finish()
}

func (s *Session) finish() {
	s.sched.CancelAll()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.done = nil
	s.lastFrame = nil
	clear(s.glyphs)
	s.mu.Unlock()
	s.camera.Stop()
	if s.state.setStreaming(false) {
		s.publishStatus(StatusStopped, "Camera stopped")
		logger.Log().Info("session stopped", zap.String("sessionID", s.ID))
	}
}

func (s *Session) SetFilter(name string) (iface.Filter, error) {
	s.Touch()
	f, err := s.state.SetFilter(name)
	if err != nil {
		return f, err
	}
	s.publishStatus(StatusFilterChanged, fmt.Sprintf("Filter changed to %s", f))
	return f, nil
}

func (s *Session) Filter() iface.Filter {
	return s.state.Filter()
}

func (s *Session) Streaming() bool {
	return s.state.Streaming()
}

// Boxes 返回最近一帧的检测框
func (s *Session) Boxes() []iface.DetectionBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFrame == nil {
		return nil
	}
	return s.lastFrame.Boxes
}

func (s *Session) LiveGlyphs() []LiveGlyph {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LiveGlyph, 0, len(s.glyphs))
	for _, g := range s.glyphs {
		out = append(out, g)
	}
	return out
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.clock()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:           s.ID,
		Filter:       s.state.Filter(),
		LiveGlyphs:   len(s.glyphs),
		Ticks:        s.seq,
		LastActive:   s.lastActive,
		PendingTasks: s.sched.Pending(),
	}
	if s.lastFrame != nil {
		f := *s.lastFrame
		snap.Frame = &f
	}
	s.mu.Unlock()
	snap.Streaming = s.state.Streaming()
	snap.Subscribers = s.subscriberCount()
	return snap
}

// Subscribe 返回事件通道。消费过慢时事件会被丢弃，tick 循环不会被阻塞。
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.subNext
	s.subNext++
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) subscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs)
}

// publish 对帧和字符事件不等待，状态和错误事件最多等待 statusPublishTimeout
func (s *Session) publish(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	wait := ev.Type == EventStatus || ev.Type == EventError
	for _, ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !wait {
			continue
		}
		timer := time.NewTimer(statusPublishTimeout)
		select {
		case ch <- ev:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *Session) publishStatus(kind Status, text string) {
	s.publish(Event{Type: EventStatus, Status: &StatusMessage{Kind: kind, Text: text}})
}

// Close 停止采集并关闭所有订阅
func (s *Session) Close() {
	s.Stop()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
