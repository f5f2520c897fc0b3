package httpclient

import (
	"errors"
	"io"
	"sync"
	"time"
)

// fakeTimer records every function scheduled through it. Nothing fires
// until fire is called.
type fakeTimer struct {
	mu    sync.Mutex
	armed []*fakeStopper
}

type fakeStopper struct {
	d       time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (ft *fakeTimer) AfterFunc(d time.Duration, f func()) Stopper {
	s := &fakeStopper{d: d, f: f}
	ft.mu.Lock()
	ft.armed = append(ft.armed, s)
	ft.mu.Unlock()
	return s
}

func (s *fakeStopper) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := !s.stopped && !s.fired
	s.stopped = true
	return pending
}

// fire runs every scheduled function that was not stopped.
func (ft *fakeTimer) fire() {
	ft.mu.Lock()
	armed := append([]*fakeStopper(nil), ft.armed...)
	ft.mu.Unlock()

	for _, s := range armed {
		s.mu.Lock()
		run := !s.stopped && !s.fired
		s.fired = true
		s.mu.Unlock()
		if run {
			s.f()
		}
	}
}

// count returns how many functions were scheduled.
func (ft *fakeTimer) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.armed)
}

// allStopped reports whether every scheduled function was stopped.
func (ft *fakeTimer) allStopped() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, s := range ft.armed {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			return false
		}
	}
	return true
}

// closeTracker records whether a body was closed.
type closeTracker struct {
	mu     sync.Mutex
	closed bool
}

func (c *closeTracker) Read([]byte) (int, error) { return 0, io.EOF }

func (c *closeTracker) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *closeTracker) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// failingMarshaler cannot be encoded as JSON.
type failingMarshaler struct{}

func (failingMarshaler) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot marshal")
}
