package repowatch

import (
	"sync/atomic"
	"time"
)

// Concern identifies one independently refreshed slice of repository state.
type Concern int

const (
	// ConcernBranches covers local refs and HEAD.
	ConcernBranches Concern = iota
	// ConcernTags covers tag refs.
	ConcernTags
	// ConcernWorkingCopy covers the index and object store.
	ConcernWorkingCopy
	// ConcernSubmodules covers registered submodule state.
	ConcernSubmodules
	// ConcernStashes covers the stash ref.
	ConcernStashes

	concernCount
)

// String returns the concern name.
func (c Concern) String() string {
	switch c {
	case ConcernBranches:
		return "branches"
	case ConcernTags:
		return "tags"
	case ConcernWorkingCopy:
		return "working-copy"
	case ConcernSubmodules:
		return "submodules"
	case ConcernStashes:
		return "stashes"
	default:
		return "unknown"
	}
}

// marker is a per-concern "becomes due at" timestamp in unix nanoseconds.
// Zero means clean. Producers and the tick consumer race on it, so all
// transitions go through compare-and-swap.
type marker struct {
	at atomic.Int64
}

// advance schedules the marker to become due at t unless it is already
// scheduled sooner. Earliest wins; a clean marker is always set.
func (m *marker) advance(t time.Time) {
	due := t.UnixNano()
	for {
		cur := m.at.Load()
		if cur != 0 && cur <= due {
			return
		}
		if m.at.CompareAndSwap(cur, due) {
			return
		}
	}
}

// force makes the marker due immediately.
func (m *marker) force(now time.Time) {
	m.advance(now)
}

// takeIfDue atomically claims the marker if it is due at now, resetting it
// to clean. Returns false for clean or not-yet-due markers.
func (m *marker) takeIfDue(now time.Time) bool {
	for {
		cur := m.at.Load()
		if cur == 0 || cur > now.UnixNano() {
			return false
		}
		if m.at.CompareAndSwap(cur, 0) {
			return true
		}
	}
}

// take claims the marker regardless of its deadline. Returns true if it was
// dirty at all.
func (m *marker) take() bool {
	for {
		cur := m.at.Load()
		if cur == 0 {
			return false
		}
		if m.at.CompareAndSwap(cur, 0) {
			return true
		}
	}
}

// dirty reports whether the marker is set.
func (m *marker) dirty() bool {
	return m.at.Load() != 0
}
