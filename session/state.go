package session

import (
	iface "FaceSyncServer/interface"
	"sync"
)

// State 保存当前滤镜和采集状态。写入来自请求处理，读取来自 tick 循环。
type State struct {
	mu        sync.RWMutex
	filter    iface.Filter
	streaming bool
}

func NewState(filter iface.Filter) *State {
	return &State{filter: filter}
}

func (s *State) Filter() iface.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

func (s *State) SetFilter(name string) (iface.Filter, error) {
	f, err := iface.ParseFilter(name)
	if err != nil {
		return s.Filter(), err
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return f, nil
}

func (s *State) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// setStreaming 返回修改前的值
func (s *State) setStreaming(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.streaming
	s.streaming = v
	return prev
}
