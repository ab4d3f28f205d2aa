package calls

import "time"

// Timeline is the append-only status history of one call. No two consecutive
// entries share a status.
type Timeline []StatusEntry

// Last returns the most recent entry.
func (t Timeline) Last() (StatusEntry, bool) {
	if len(t) == 0 {
		return StatusEntry{}, false
	}
	return t[len(t)-1], true
}

// Settled reports whether the timeline ends in a terminal status.
func (t Timeline) Settled() bool {
	last, ok := t.Last()
	return ok && last.Status.IsTerminal()
}

// FoldStatus folds an incoming status into tl. It returns tl itself when the
// status repeats the last entry, is empty, or tl is already settled; otherwise
// a new timeline with the entry appended. tl is never modified.
func FoldStatus(tl Timeline, incoming string, at time.Time) Timeline {
	st := NormalizeStatus(incoming)
	if st == "" || tl.Settled() {
		return tl
	}
	if last, ok := tl.Last(); ok && last.Status == st {
		return tl
	}
	out := make(Timeline, len(tl), len(tl)+1)
	copy(out, tl)
	return append(out, StatusEntry{Status: st, At: at})
}
