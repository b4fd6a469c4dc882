package compiler

import (
	"slices"
	"sync"
)

// Progress is one progress report of a platform's running build.
type Progress struct {
	Platform  string
	Total     int
	Completed int
	Message   string
}

// ProgressFunc receives progress for the build a GetAsset call is waiting
// on. Calls are sequential and in emission order. It is never called after
// GetAsset returns.
//
// It runs on the platform's event loop, so it must return promptly and must
// not call back into the Compiler for the same platform: a GetAsset that has
// to wait for that platform's build would never be answered.
type ProgressFunc func(Progress)

// subscription wraps a ProgressFunc so it can be shut off while a delivery
// may be running on the platform's event loop.
type subscription struct {
	mu     sync.Mutex
	fn     ProgressFunc
	closed bool
}

func (s *subscription) deliver(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(p)
}

// close blocks until any in-flight delivery returns.
func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// progressMux is a platform's set of progress subscriptions. It is guarded
// by the owning platformState's mutex.
type progressMux struct {
	subs []*subscription
}

func (m *progressMux) add(fn ProgressFunc) *subscription {
	if fn == nil {
		return nil
	}
	s := &subscription{fn: fn}
	m.subs = append(m.subs, s)
	return s
}

func (m *progressMux) remove(s *subscription) {
	if s == nil {
		return
	}
	m.subs = slices.DeleteFunc(m.subs, func(x *subscription) bool { return x == s })
}

func (m *progressMux) snapshot() []*subscription {
	return slices.Clone(m.subs)
}
