package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
	"github.com/KwakOri/vshot-server/internal/layout"
)

type fakeTask struct {
	fn        func()
	due       time.Time
	cancelled bool
	fired     bool
}

func (t *fakeTask) Cancel() bool {
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// fakeClock is a deterministic core.Scheduler: After registers a task and
// Advance fires due tasks in order, synchronously.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration, fn func()) core.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTask{fn: fn, due: c.now.Add(d)}
	c.tasks = append(c.tasks, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTask
		for _, t := range c.tasks {
			if t.fired || t.cancelled || t.due.After(target) {
				continue
			}
			if next == nil || t.due.Before(next.due) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.due
		next.fired = true
		// Release the lock while firing; the callback may schedule again.
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	fail   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	if c.closed {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSink struct {
	mu         sync.Mutex
	broadcasts []any
	addressed  map[domain.ParticipantID][]any
}

func newFakeSink() *fakeSink {
	return &fakeSink{addressed: make(map[domain.ParticipantID][]any)}
}

func (s *fakeSink) Broadcast(roomID domain.RoomID, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, v)
}

func (s *fakeSink) ToIdentity(id domain.ParticipantID, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addressed[id] = append(s.addressed[id], v)
}

func (s *fakeSink) events() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.broadcasts))
	copy(out, s.broadcasts)
	return out
}

func (s *fakeSink) countWhere(match func(any) bool) int {
	n := 0
	for _, e := range s.events() {
		if match(e) {
			n++
		}
	}
	return n
}

type fakeMerger struct {
	mu           sync.Mutex
	mergeCalls   int
	composeCalls int
	composedRefs []string
	failMerge    error
	failCompose  error
	// gate, when non-nil, blocks Merge until closed.
	gate chan struct{}
}

func (m *fakeMerger) Merge(ctx context.Context, hostRef, guestRef string, hint core.MergeHint) (string, error) {
	m.mu.Lock()
	m.mergeCalls++
	gate := m.gate
	err := m.failMerge
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return "merged:" + hostRef + "+" + guestRef, nil
}

func (m *fakeMerger) Compose(ctx context.Context, refs []string, frame *layout.Frame) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.composeCalls++
	m.composedRefs = append([]string(nil), refs...)
	if m.failCompose != nil {
		return "", m.failCompose
	}
	return "composed:" + frame.ID, nil
}

func (m *fakeMerger) merges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeCalls
}

func (m *fakeMerger) composes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.composeCalls
}

func (m *fakeMerger) setFailMerge(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMerge = err
}

// waitFor polls until cond holds or the deadline passes. Background merges
// run on their own goroutines, so tests observe their effects this way.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
