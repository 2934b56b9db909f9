package live

import (
	"context"
	"sync"
)

// Tracker is process-wide bookkeeping for open sessions. An application
// embedding several sessions registers each one so shutdown can warn and
// close them all, and graceful drain can wait for stragglers.
//
// A nil *Tracker is a no-op, so callers can thread one through
// unconditionally.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedEntry
	wg       sync.WaitGroup
}

type trackedEntry struct {
	sess *Session
	once sync.Once
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*trackedEntry)}
}

// Track registers a session and returns its untrack function. A second
// registration under the same session id displaces the first.
func (t *Tracker) Track(s *Session) (untrack func()) {
	if t == nil || s == nil {
		return func() {}
	}

	entry := &trackedEntry{sess: s}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedEntry)
	}
	old := t.sessions[s.id]
	t.sessions[s.id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.untrack(s.id, old)
	}

	return func() { t.untrack(s.id, entry) }
}

func (t *Tracker) untrack(id string, entry *trackedEntry) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[id] == entry {
			delete(t.sessions, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Count returns the number of tracked sessions.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// WarnAll emits a warning event on every tracked session, best effort.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}

	var targets []*Session
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry != nil && entry.sess != nil {
			targets = append(targets, entry.sess)
		}
	}
	t.mu.Unlock()

	for _, s := range targets {
		s.emit(WarningEvent{Code: code, Message: message})
		sent++
	}
	return sent
}

// CloseAll closes every tracked session and reports how many it closed.
// Each Close blocks until that session has fully stopped.
func (t *Tracker) CloseAll() (closed int) {
	if t == nil {
		return 0
	}

	var targets []*Session
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry != nil && entry.sess != nil {
			targets = append(targets, entry.sess)
		}
	}
	t.mu.Unlock()

	for _, s := range targets {
		_ = s.Close()
		closed++
	}
	return closed
}

// Wait blocks until every tracked session has untracked itself, or until
// ctx expires. Returns true when the tracker drained.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		t.wg.Wait()
	}()

	select {
	case <-drained:
		return true
	case <-ctx.Done():
		return false
	}
}
