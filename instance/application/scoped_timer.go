package application

import (
	"sync"
	"time"
)

// ScopedTimer is a single restartable timer owned by one record. Every Reset or
// Stop bumps the generation, so a callback that already fired can tell it is stale.
type ScopedTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Reset cancels any pending run and schedules fn after d. fn gets the generation it belongs to.
func (s *ScopedTimer) Reset(d time.Duration, fn func(gen uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { fn(gen) })
	return gen
}

func (s *ScopedTimer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *ScopedTimer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Consume marks a fired generation as handled. It returns false for stale generations.
func (s *ScopedTimer) Consume(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil || s.gen != gen {
		return false
	}
	s.timer = nil
	return true
}
