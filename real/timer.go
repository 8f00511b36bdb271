package real

import (
	"sync"
	"time"
)

// Fire is a fired timer waiting to be delivered.
type Fire struct {
	Name string
	gen  uint64
}

type pendingTimer struct {
	t   *time.Timer
	gen uint64
}

// TimerManager manages the named timers of one process. A timer is
// delivered only if it is still pending when the process takes it: a
// cancel or an override after the fire wins.
type TimerManager struct {
	mu     sync.Mutex
	gen    uint64
	timers map[string]pendingTimer
	fired  chan Fire
	done   chan struct{}
	closed bool
}

func NewTimerManager(bufferSize int) *TimerManager {
	return &TimerManager{
		timers: make(map[string]pendingTimer),
		fired:  make(chan Fire, bufferSize),
		done:   make(chan struct{}),
	}
}

// SetTimer sets a timer. An existing timer with the same name is replaced
// if overwrite is set and kept otherwise.
func (tm *TimerManager) SetTimer(name string, delay time.Duration, overwrite bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.closed {
		return
	}
	if prev, ok := tm.timers[name]; ok {
		if !overwrite {
			return
		}
		prev.t.Stop()
	}
	tm.gen++
	f := Fire{Name: name, gen: tm.gen}
	t := time.AfterFunc(delay, func() {
		select {
		case tm.fired <- f:
		case <-tm.done:
		}
	})
	tm.timers[name] = pendingTimer{t: t, gen: f.gen}
}

func (tm *TimerManager) CancelTimer(name string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if prev, ok := tm.timers[name]; ok {
		prev.t.Stop()
		delete(tm.timers, name)
	}
}

func (tm *TimerManager) CancelAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for name, prev := range tm.timers {
		prev.t.Stop()
		delete(tm.timers, name)
	}
}

// Close cancels all timers and releases the fires nobody takes.
func (tm *TimerManager) Close() {
	tm.CancelAll()
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if !tm.closed {
		tm.closed = true
		close(tm.done)
	}
}

func (tm *TimerManager) Fired() <-chan Fire {
	return tm.fired
}

// Claim removes the fired timer and reports whether it is to be delivered.
func (tm *TimerManager) Claim(f Fire) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cur, ok := tm.timers[f.Name]
	if !ok || cur.gen != f.gen {
		return false
	}
	delete(tm.timers, f.Name)
	return true
}

func (tm *TimerManager) Pending() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.timers)
}
