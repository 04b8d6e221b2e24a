// Package session restricts new entries to a configured UTC trading
// window. The predicate is pure; it holds no state.
package session

import "time"

type Window struct {
	Enabled   bool
	StartHour int // inclusive, UTC
	EndHour   int // exclusive, UTC
}

// Active reports whether t falls inside the [StartHour, EndHour) window.
// StartHour > EndHour spans midnight. A disabled window is always active.
func (w Window) Active(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	h := t.UTC().Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}
