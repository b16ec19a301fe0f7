package session

import (
	"FaceSyncServer/engine"
	iface "FaceSyncServer/interface"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSim 每次 tick 返回一个带指定字符的框
type fixedSim struct {
	glyphs []iface.Glyph
	calls  atomic.Int64
}

func (f *fixedSim) Tick(ts float64, filter iface.Filter, rng iface.RandSource) []iface.DetectionBox {
	f.calls.Add(1)
	style := engine.DefaultStyle()
	style.Glyphs = f.glyphs
	if filter == iface.FilterNeon {
		style.BorderColor = "#00ffff"
	}
	return []iface.DetectionBox{{X: 50, Y: 40, Size: 100, Style: style}}
}

type panicSim struct{}

func (panicSim) Tick(float64, iface.Filter, iface.RandSource) []iface.DetectionBox {
	panic("boom")
}

func waitEvent(t *testing.T, ch <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func isStatus(kind Status) func(Event) bool {
	return func(ev Event) bool { return ev.Type == EventStatus && ev.Status.Kind == kind }
}

func isType(typ EventType) func(Event) bool {
	return func(ev Event) bool { return ev.Type == typ }
}

func TestSession_StartDenied(t *testing.T) {
	for perm, want := range map[iface.Permission]error{
		iface.PermissionDenied:      ErrPermissionDenied,
		iface.PermissionUnsupported: ErrUnsupportedDevice,
		iface.Permission("maybe"):   ErrPermissionDenied,
	} {
		s := New("s1", Options{Simulator: &fixedSim{}})
		events, cancel := s.Subscribe()
		err := s.Start(context.Background(), perm)
		assert.ErrorIs(t, err, want)
		assert.False(t, s.Streaming())

		first := <-events
		assert.Equal(t, StatusInitializing, first.Status.Kind)
		second := <-events
		assert.Equal(t, StatusDenied, second.Status.Kind)
		assert.Contains(t, second.Status.Text, "Camera access denied")
		cancel()
	}
}

func TestSession_Lifecycle(t *testing.T) {
	sim := &fixedSim{}
	s := New("s2", Options{Simulator: sim, Interval: 5 * time.Millisecond})
	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background(), iface.PermissionGranted))
	assert.True(t, s.Streaming())
	assert.ErrorIs(t, s.Start(context.Background(), iface.PermissionGranted), ErrAlreadyStreaming)

	waitEvent(t, events, isStatus(StatusActive))
	ev := waitEvent(t, events, isType(EventFrame))
	assert.Equal(t, iface.FilterNormal, ev.Frame.Filter)
	require.Len(t, ev.Frame.Boxes, 1)

	f, err := s.SetFilter("neon")
	require.NoError(t, err)
	assert.Equal(t, iface.FilterNeon, f)
	st := waitEvent(t, events, isStatus(StatusFilterChanged))
	assert.Equal(t, "Filter changed to neon", st.Status.Text)

	ev = waitEvent(t, events, func(ev Event) bool {
		return ev.Type == EventFrame && ev.Frame.Filter == iface.FilterNeon
	})
	assert.Equal(t, "#00ffff", ev.Frame.Boxes[0].Style.BorderColor)

	_, err = s.SetFilter("sepia")
	assert.ErrorIs(t, err, iface.ErrUnknownFilter)
	assert.Equal(t, iface.FilterNeon, s.Filter())

	s.Stop()
	assert.False(t, s.Streaming())
	assert.Nil(t, s.Boxes())
	waitEvent(t, events, isStatus(StatusStopped))

	calls := sim.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, sim.calls.Load(), "tick ran after stop")

	// 停止后可以再次开始
	require.NoError(t, s.Start(context.Background(), iface.PermissionGranted))
	waitEvent(t, events, isType(EventFrame))
	s.Stop()
}

func TestSession_TickReplacesBoxes(t *testing.T) {
	s := New("s3", Options{Simulator: engine.NewSimulator(nil), Seed: 5})
	s.state.SetFilter("cyberpunk")
	base := time.Unix(1700000000, 0)
	for i := 0; i < 50; i++ {
		frame := s.tick(base.Add(time.Duration(i) * 16 * time.Millisecond))
		assert.Equal(t, uint64(i+1), frame.Seq)
		assert.Equal(t, frame.Boxes, s.Boxes())
		for _, b := range frame.Boxes {
			assert.Equal(t, "#ff00ff", b.Style.BorderColor)
		}
	}
	assert.Equal(t, uint64(50), s.Snapshot().Ticks)
}

func TestSession_SeedDeterminism(t *testing.T) {
	a := New("a", Options{Simulator: engine.NewSimulator(nil), Seed: 77})
	b := New("b", Options{Simulator: engine.NewSimulator(nil), Seed: 77})
	base := time.Unix(1700000000, 0)
	for i := 0; i < 100; i++ {
		now := base.Add(time.Duration(i) * 16 * time.Millisecond)
		if diff := cmp.Diff(a.tick(now), b.tick(now)); diff != "" {
			t.Fatalf("tick %d differs:\n%s", i, diff)
		}
	}
}

func TestSession_GlyphLifecycle(t *testing.T) {
	sim := &fixedSim{glyphs: []iface.Glyph{
		{Char: "ア", Delay: 0, Lifetime: 20 * time.Millisecond},
		{Char: "イ", Delay: 5 * time.Millisecond, Lifetime: 20 * time.Millisecond},
	}}
	s := New("s4", Options{Simulator: sim})
	events, cancel := s.Subscribe()
	defer cancel()

	s.tick(time.Now())
	spawn := waitEvent(t, events, isType(EventGlyphSpawn))
	assert.Equal(t, 50.0, spawn.Glyph.X)
	assert.Equal(t, uint64(1), spawn.Glyph.FrameSeq)
	expire := waitEvent(t, events, isType(EventGlyphExpire))
	assert.NotZero(t, expire.Glyph.ID)

	assert.Eventually(t, func() bool {
		return s.sched.Pending() == 0 && len(s.LiveGlyphs()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSession_StopCancelsGlyphs(t *testing.T) {
	sim := &fixedSim{glyphs: []iface.Glyph{
		{Char: "0", Delay: 0, Lifetime: time.Hour},
		{Char: "1", Delay: time.Hour, Lifetime: time.Hour},
	}}
	s := New("s5", Options{Simulator: sim, Interval: time.Hour})
	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Start(context.Background(), iface.PermissionGranted))
	s.tick(time.Now())
	waitEvent(t, events, isType(EventGlyphSpawn))
	assert.Len(t, s.LiveGlyphs(), 1)
	assert.Equal(t, 2, s.sched.Pending())

	s.Stop()
	assert.Equal(t, 0, s.sched.Pending())
	assert.Empty(t, s.LiveGlyphs())
	waitEvent(t, events, isStatus(StatusStopped))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after stop: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSession_PanicStopsLoop(t *testing.T) {
	s := New("s6", Options{Simulator: panicSim{}, Interval: 2 * time.Millisecond})
	events, cancel := s.Subscribe()
	defer cancel()
	require.NoError(t, s.Start(context.Background(), iface.PermissionGranted))
	ev := waitEvent(t, events, isType(EventError))
	assert.Contains(t, ev.Error, "boom")
	waitEvent(t, events, isStatus(StatusStopped))
	assert.False(t, s.Streaming())
	s.Stop()
}

func TestSession_Close(t *testing.T) {
	s := New("s7", Options{Simulator: &fixedSim{}})
	events, cancel := s.Subscribe()
	s.Close()
	_, ok := <-events
	assert.False(t, ok)
	cancel()

	late, _ := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestClientCamera(t *testing.T) {
	c := &ClientCamera{}
	require.NoError(t, c.Start(context.Background(), iface.PermissionGranted))
	assert.True(t, c.Streaming())
	c.Stop()
	assert.False(t, c.Streaming())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(c.Start(ctx, iface.PermissionGranted), context.Canceled))
	assert.False(t, c.Streaming())
}

func TestScheduler(t *testing.T) {
	s := NewScheduler()
	fired := make(chan TaskID, 4)

	id := s.After(time.Millisecond, func() { fired <- 1 })
	assert.Equal(t, TaskID(1), id)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}

	id = s.After(time.Hour, func() { fired <- 2 })
	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))

	s.After(10*time.Millisecond, func() { fired <- 3 })
	s.After(10*time.Millisecond, func() { fired <- 4 })
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, 2, s.CancelAll())
	assert.Equal(t, 0, s.Pending())
	select {
	case v := <-fired:
		t.Fatalf("cancelled task %d fired", v)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestScheduler_CancelAllBlocksRearm(t *testing.T) {
	s := NewScheduler()
	started := make(chan struct{})
	release := make(chan struct{})
	rearmed := make(chan TaskID, 1)
	fired := make(chan struct{}, 1)

	s.After(0, func() {
		close(started)
		<-release
		rearmed <- s.After(5*time.Millisecond, func() { fired <- struct{}{} })
	})
	<-started

	done := make(chan int)
	go func() { done <- s.CancelAll() }()
	assert.Eventually(t, s.isClosed, time.Second, time.Millisecond)
	close(release)
	<-done

	assert.Equal(t, TaskID(0), <-rearmed)
	assert.Equal(t, 0, s.Pending())
	select {
	case <-fired:
		t.Fatal("task armed during CancelAll fired")
	case <-time.After(30 * time.Millisecond):
	}

	s.Reset()
	s.After(time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task did not fire after Reset")
	}
}

func TestSession_StopDuringGlyphSpawn(t *testing.T) {
	sim := &fixedSim{glyphs: []iface.Glyph{
		{Char: "0", Delay: 50 * time.Millisecond, Lifetime: 20 * time.Millisecond},
	}}
	s := New("s8", Options{Simulator: sim})
	events, cancel := s.Subscribe()
	defer cancel()

	s.tick(time.Now())
	// 持有 mu，让 spawn 任务卡在执行中
	s.mu.Lock()
	assert.Eventually(t, func() bool { return s.sched.Pending() == 0 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.finish()
		close(done)
	}()
	assert.Eventually(t, s.sched.isClosed, time.Second, time.Millisecond)
	s.mu.Unlock()
	<-done

	assert.Equal(t, 0, s.sched.Pending())
	assert.Empty(t, s.LiveGlyphs())
	deadline := time.After(80 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, EventGlyphExpire, ev.Type, "glyph expired after stop")
		case <-deadline:
			return
		}
	}
}
