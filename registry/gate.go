package registry

import (
	"fmt"
	"time"
)

// Window is how long after creation an entry's metadata may still change.
// It applies uniformly to every entry and cannot be extended.
const Window = 24 * time.Hour

// Gate is the mutation policy: only the creator may edit, and only until
// CreatedAt+Window inclusive. With Immutable set nothing may be edited.
//
// Gate has no state and no side effects.
type Gate struct {
	Immutable bool
}

// Deadline is the last instant at which e may still be edited.
func (Gate) Deadline(e Entry) time.Time {
	return e.CreatedAt.Add(Window)
}

// Open reports whether e's window is open at now.
func (g Gate) Open(e Entry, now time.Time) bool {
	if g.Immutable {
		return false
	}
	return !now.After(g.Deadline(e))
}

// Allow reports whether caller may edit e at now.
func (g Gate) Allow(e Entry, caller string, now time.Time) bool {
	return caller == e.Creator && g.Open(e, now)
}

// Check is Allow with the reason for a refusal.
func (g Gate) Check(e Entry, caller string, now time.Time) error {
	if caller != e.Creator {
		return newError(KindUnauthorized, fmt.Sprintf("caller %q is not the creator of entry %d", caller, e.ID))
	}
	if g.Immutable {
		return newError(KindWindowClosed, fmt.Sprintf("entry %d metadata is frozen at mint", e.ID))
	}
	if now.After(g.Deadline(e)) {
		return newError(KindWindowClosed, fmt.Sprintf("entry %d mutation window closed at %s", e.ID, g.Deadline(e).UTC().Format(time.RFC3339)))
	}
	return nil
}
