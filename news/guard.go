package news

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Enabled    bool
	Currencies []string

	BlockBeforeMin int // no new entries this long before an event
	BlockAfterMin  int // and this long after

	CancelPendingMin  int // cancel pending orders this far ahead
	ForceBreakevenMin int // protect open positions this far ahead
	RefreshInterval   time.Duration
}

func (c *Config) setDefaults() {
	if c.BlockBeforeMin <= 0 {
		c.BlockBeforeMin = 30
	}
	if c.BlockAfterMin <= 0 {
		c.BlockAfterMin = 15
	}
	if c.CancelPendingMin <= 0 {
		c.CancelPendingMin = 20
	}
	if c.ForceBreakevenMin <= 0 {
		c.ForceBreakevenMin = 10
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Minute
	}
}

// Guard caches the next high-impact event and answers window queries
// against it. Refreshes are bounded by a rate limiter so every tick can
// ask cheaply. Single-goroutine by contract, like the rest of the
// decision loop.
type Guard struct {
	cfg     Config
	cal     Calendar
	log     zerolog.Logger
	limiter *rate.Limiter

	next    *Event
	stale   bool // last refresh attempt failed
	fetched bool // at least one refresh succeeded
}

func NewGuard(cfg Config, cal Calendar, log zerolog.Logger) *Guard {
	cfg.setDefaults()
	return &Guard{
		cfg:     cfg,
		cal:     cal,
		log:     log.With().Str("component", "news").Logger(),
		limiter: rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1),
	}
}

// refresh re-fetches the cached event if the limiter allows. A failed
// fetch marks the cache stale, and a stale cache blocks trading.
func (g *Guard) refresh(ctx context.Context, now time.Time) {
	if !g.limiter.AllowN(now, 1) {
		return
	}

	ev, err := g.cal.NextHighImpact(ctx, g.cfg.Currencies, now)
	if err != nil {
		g.stale = true
		g.log.Warn().Err(err).Msg("calendar refresh failed, trading blocked")
		return
	}
	g.stale = false
	g.fetched = true
	g.next = ev
	if ev != nil {
		g.log.Debug().
			Time("event", ev.Time).
			Str("currency", ev.Currency).
			Str("title", ev.Title).
			Msg("next high-impact event cached")
	} else {
		g.log.Warn().Msg("calendar returned no events for watched currencies, trading blocked")
	}
}

// Blocked reports whether new entries are forbidden right now, with a
// human-readable reason. An unreachable calendar and a calendar with no
// events for any watched currency both block: trading never proceeds on
// a schedule the guard cannot vouch for.
func (g *Guard) Blocked(ctx context.Context, now time.Time) (bool, string) {
	if !g.cfg.Enabled {
		return false, ""
	}
	g.refresh(ctx, now)

	if g.stale || !g.fetched {
		return true, "calendar unavailable"
	}
	if g.next == nil {
		return true, "no calendar data for watched currencies"
	}

	if g.inBlackout(now) {
		return true, g.next.Currency + " " + g.next.Title
	}
	return false, ""
}

func (g *Guard) inBlackout(now time.Time) bool {
	if g.next == nil {
		return false
	}
	start := g.next.Time.Add(-time.Duration(g.cfg.BlockBeforeMin) * time.Minute)
	end := g.next.Time.Add(time.Duration(g.cfg.BlockAfterMin) * time.Minute)
	return !now.Before(start) && now.Before(end)
}

// Status describes the guard's view of the calendar for heartbeat
// reporting.
func (g *Guard) Status(now time.Time) string {
	if !g.cfg.Enabled {
		return "news guard disabled"
	}
	if g.stale || !g.fetched {
		return "calendar unavailable"
	}
	if g.next == nil {
		return "no calendar data"
	}
	if g.inBlackout(now) {
		return fmt.Sprintf("blackout: %s %s", g.next.Currency, g.next.Title)
	}
	return fmt.Sprintf("next: %s %s at %s", g.next.Currency, g.next.Title,
		g.next.Time.Format("Mon 15:04"))
}

// ShouldCancelPending reports whether pending orders should be pulled
// ahead of the cached event.
func (g *Guard) ShouldCancelPending(now time.Time) bool {
	return g.within(now, g.cfg.CancelPendingMin)
}

// ShouldForceBreakeven reports whether open positions should be moved
// to breakeven ahead of the cached event.
func (g *Guard) ShouldForceBreakeven(now time.Time) bool {
	return g.within(now, g.cfg.ForceBreakevenMin)
}

// within is true from lead minutes before the event until the event
// itself. Defensive actions are pointless once the release is out.
func (g *Guard) within(now time.Time, leadMin int) bool {
	if !g.cfg.Enabled || g.next == nil {
		return false
	}
	start := g.next.Time.Add(-time.Duration(leadMin) * time.Minute)
	return !now.Before(start) && now.Before(g.next.Time)
}
