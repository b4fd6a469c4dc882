package compiler

import (
	"slices"
	"sync"

	"github.com/Iron-Ham/bundlr/internal/builder"
)

// State is where a platform is in its builder lifecycle.
type State int

const (
	// StateAbsent means no builder has been requested for the platform.
	StateAbsent State = iota
	// StateBuilding means a build cycle is in progress.
	StateBuilding
	// StateIdle means the last cycle ended and the builder is waiting for
	// changes.
	StateIdle
	// StateStopped means the builder exited. Its last good output is still
	// served.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBuilding:
		return "building"
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// result resolves one waiter.
type result struct {
	artifact Artifact
	err      error
}

// waiter is a GetAsset call suspended on the platform's current cycle.
type waiter struct {
	filename string
	sub      *subscription
	done     chan result
}

func newWaiter(filename string, sub *subscription) *waiter {
	return &waiter{filename: filename, sub: sub, done: make(chan result, 1)}
}

func (w *waiter) resolve(r result) {
	if w.sub != nil {
		w.sub.close()
	}
	w.done <- r
}

// platformState is everything the compiler tracks for one platform. All
// fields are guarded by mu; the platform's event loop is the only writer
// of the cache.
type platformState struct {
	name string

	mu         sync.Mutex
	proc       builder.Process
	inProgress bool
	state      State
	closing    bool

	// assets is replaced wholesale on every successful build and never
	// mutated in place, so a reference read under mu stays valid.
	assets  map[string]Artifact
	stats   builder.Stats
	lastErr error

	pending  []*waiter
	progress progressMux
}

func newPlatformState(name string) *platformState {
	return &platformState{
		name:   name,
		state:  StateAbsent,
		assets: map[string]Artifact{},
	}
}

// enqueue registers w for the next terminal event. Caller holds mu.
func (ps *platformState) enqueue(w *waiter) {
	ps.pending = append(ps.pending, w)
}

// dequeue removes w if it is still pending. Caller holds mu.
func (ps *platformState) dequeue(w *waiter) bool {
	i := slices.Index(ps.pending, w)
	if i < 0 {
		return false
	}
	ps.pending = slices.Delete(ps.pending, i, i+1)
	ps.progress.remove(w.sub)
	return true
}

// drain empties the queue and the subscription set. Caller holds mu and
// resolves the returned waiters after unlocking.
func (ps *platformState) drain() []*waiter {
	waiters := ps.pending
	ps.pending = nil
	ps.progress = progressMux{}
	return waiters
}
