// Package news blocks trading around scheduled high-impact calendar
// events. The guard fails safe: when the calendar cannot be fetched,
// entries stay blocked until a refresh succeeds.
package news

import (
	"context"
	"time"
)

// Event is one scheduled economic release.
type Event struct {
	Time     time.Time
	Currency string
	Title    string
	Impact   string
}

// Calendar fetches upcoming events. NextHighImpact returns nil with a
// nil error when no matching event remains this week; an error means
// the calendar itself is unreachable, which callers must treat
// differently from an empty schedule.
type Calendar interface {
	NextHighImpact(ctx context.Context, currencies []string, after time.Time) (*Event, error)
}
