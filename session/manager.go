package session

import (
	"FaceSyncServer/logger"
	"FaceSyncServer/monitor"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ManagerConfig struct {
	MaxSessions int
	IdleTimeout time.Duration
	// Options 作为每个新会话的模板，Alloc 传入非 0 seed 时覆盖 Options.Seed
	Options Options
}

type instance struct {
	session     *Session
	cancelTimer chan struct{}
	cancelOnce  sync.Once
}

// Manager 限制并发会话数量，并释放长时间无活动的会话
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*instance
	maxSessions int
	idleTimeout time.Duration
	opts        Options
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	return &Manager{
		sessions:    make(map[string]*instance),
		maxSessions: cfg.MaxSessions,
		idleTimeout: cfg.IdleTimeout,
		opts:        cfg.Options,
	}
}

func (m *Manager) Alloc(seed uint64) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrNoCapacity
	}
	opts := m.opts
	if seed != 0 {
		opts.Seed = seed
	}
	id := uuid.New().String()
	inst := &instance{
		session:     New(id, opts),
		cancelTimer: make(chan struct{}),
	}
	m.sessions[id] = inst
	count := len(m.sessions)
	m.mu.Unlock()

	monitor.SessionsActive.Set(float64(count))
	if m.idleTimeout > 0 {
		m.startIdleMonitor(inst)
	}
	logger.Log().Info("session allocated", zap.String("sessionID", id), zap.Int("active", count))
	return inst.session, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	inst, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst.session, nil
}

// List 按 ID 排序返回所有会话快照
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, inst := range m.sessions {
		out = append(out, inst.session.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) Release(id string) error {
	m.mu.Lock()
	inst, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	inst.cancelOnce.Do(func() {
		close(inst.cancelTimer)
	})
	inst.session.Close()
	monitor.SessionsActive.Set(float64(count))
	logger.Log().Info("session released", zap.String("sessionID", id), zap.Int("active", count))
	return nil
}

func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Release(id)
	}
}

func idleCheckInterval(timeout time.Duration) time.Duration {
	d := timeout / 10
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	if d > time.Second {
		d = time.Second
	}
	return d
}

// startIdleMonitor 有订阅者（已连接的客户端）时不计空闲
func (m *Manager) startIdleMonitor(inst *instance) {
	go func() {
		ticker := time.NewTicker(idleCheckInterval(m.idleTimeout))
		defer ticker.Stop()
		s := inst.session
		for {
			select {
			case <-inst.cancelTimer:
				return
			case <-ticker.C:
				if s.subscriberCount() > 0 {
					s.Touch()
					continue
				}
				if s.clock().Sub(s.idleSince()) > m.idleTimeout {
					logger.Log().Info("session idle, releasing", zap.String("sessionID", s.ID), zap.Duration("timeout", m.idleTimeout))
					_ = m.Release(s.ID)
					return
				}
			}
		}
	}()
}
