package utils

import (
	"sync"
	"time"
)

// TimerSlots holds at most one pending timer per purpose. Scheduling a purpose again
// cancels the previous timer for it.
type TimerSlots struct {
	mu      sync.Mutex
	slots   map[string]*slot
	seq     uint64
	stopped bool
}

type slot struct {
	timer *time.Timer
	gen   uint64
}

func NewTimerSlots() *TimerSlots {
	return &TimerSlots{slots: make(map[string]*slot)}
}

// Schedule runs fn after d unless the purpose is rescheduled, cancelled or the store is stopped.
// It reports false once StopAll has been called.
func (t *TimerSlots) Schedule(purpose string, d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	if prev, ok := t.slots[purpose]; ok {
		prev.timer.Stop()
	}
	t.seq++
	gen := t.seq

	s := &slot{gen: gen}
	s.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.slots[purpose]
		if !ok || cur.gen != gen || t.stopped {
			t.mu.Unlock()
			return
		}
		delete(t.slots, purpose)
		t.mu.Unlock()
		fn()
	})
	t.slots[purpose] = s
	return true
}

// Cancel drops the pending timer for purpose, reporting whether one was pending.
func (t *TimerSlots) Cancel(purpose string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[purpose]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(t.slots, purpose)
	return true
}

func (t *TimerSlots) Pending(purpose string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.slots[purpose]
	return ok
}

func (t *TimerSlots) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// StopAll cancels every pending timer and refuses new ones.
func (t *TimerSlots) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for purpose, s := range t.slots {
		s.timer.Stop()
		delete(t.slots, purpose)
	}
}
