package lua

import (
	"sync"
	"time"
)

// timers tracks pending ext.setTimeout callbacks so they can be cleared
// individually or stopped together when a module closes.
type timers struct {
	mu      sync.Mutex
	next    int
	active  map[int]*time.Timer
	stopped bool
}

func newTimers() *timers {
	return &timers{active: make(map[int]*time.Timer)}
}

// add schedules fire(id) after d. It returns 0 once stopAll has run.
func (t *timers) add(d time.Duration, fire func(id int)) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0
	}
	if d < 0 {
		d = 0
	}
	t.next++
	id := t.next
	t.active[id] = time.AfterFunc(d, func() { fire(id) })
	return id
}

// take removes a fired timer. It returns false if the timer was cleared
// in the meantime.
func (t *timers) take(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}

func (t *timers) clear(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.active[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.active, id)
	return true
}

func (t *timers) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *timers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, timer := range t.active {
		timer.Stop()
		delete(t.active, id)
	}
}
