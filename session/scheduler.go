package session

import (
	"sync"
	"time"
)

type TaskID uint64

// Scheduler 管理延时任务。CancelAll 返回后不会再有任务执行，也没有任务仍在执行中。
type Scheduler struct {
	runMu sync.RWMutex
	mu    sync.Mutex
	next  TaskID
	tasks map[TaskID]*time.Timer
	// closed 在 CancelAll 后置位，期间 After 不再登记任务，Reset 后恢复
	closed bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[TaskID]*time.Timer)}
}

// After 在 d 之后执行 fn。调度器已关闭时返回 0，fn 不会执行。
func (s *Scheduler) After(d time.Duration, fn func()) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.next++
	id := s.next
	s.tasks[id] = time.AfterFunc(d, func() {
		s.runMu.RLock()
		defer s.runMu.RUnlock()
		if !s.take(id) {
			return
		}
		fn()
	})
	return id
}

func (s *Scheduler) take(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}

func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.tasks, id)
	return true
}

// CancelAll 关闭调度器，取消全部待执行任务并等待正在执行的任务结束，返回被取消的数量
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	s.closed = true
	n := len(s.tasks)
	for id, t := range s.tasks {
		t.Stop()
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.runMu.Lock()
	s.runMu.Unlock()
	return n
}

// Reset 重新打开调度器
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
