// Package strategy derives directional trade proposals from
// multi-timeframe indicator readings. Strategies are pure: Evaluate
// reads the context and computes, with no side effects.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"propengine/indicators"
	"propengine/market"
)

// Signal is a proposed trade. It is created fresh on each evaluation and
// never mutated once accepted.
type Signal struct {
	Direction  market.Direction
	Entry      float64
	Stop       float64
	Target     float64
	StopPips   float64
	TargetPips float64
	Reason     string
}

// Valid checks that stop and target sit on the correct sides of entry.
func (s *Signal) Valid() bool {
	switch s.Direction {
	case market.Long:
		return s.Stop < s.Entry && s.Entry < s.Target
	case market.Short:
		return s.Target < s.Entry && s.Entry < s.Stop
	}
	return false
}

// Context is everything a strategy may read during one evaluation.
// Candle slices hold closed bars only, oldest first.
type Context struct {
	Instrument market.Instrument

	LTF    []market.Candle // lower timeframe, e.g. H1
	HTF    []market.Candle // higher timeframe, e.g. H4
	LTFInd indicators.Snapshot
	HTFInd indicators.Snapshot

	Ask float64
	Bid float64
	Now time.Time
}

// Strategy is the single capability a trading variant must provide.
// Evaluate returns nil when there is nothing to do.
type Strategy interface {
	Name() string
	Evaluate(ctx *Context) *Signal
}

type Factory func(cfg Config) Strategy

var registry = map[string]Factory{}

func Register(name string, f Factory) {
	registry[name] = f
}

// New constructs a registered strategy by name.
func New(name string, cfg Config) (Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", name, Names())
	}
	return f(cfg), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config carries the tunables for all registered strategies; each
// strategy reads the fields it cares about.
type Config struct {
	RRRatio      float64
	ADXThreshold float64
	DISeparation float64

	RSIBuyLow   float64
	RSIBuyHigh  float64
	RSISellLow  float64
	RSISellHigh float64

	PullbackBandPct float64 // tolerance band around the fast EMA, percent
	MinBodyRatio    float64

	MinStopATR float64 // stop distance sanity bounds, in ATR multiples
	MaxStopATR float64

	MinStopPips float64
	MaxStopPips float64

	// London breakout.
	LondonEntryStart int
	LondonEntryEnd   int
	AsianStartHour   int
	AsianEndHour     int
	MinRangePips     float64
	MaxRangePips     float64
	RangeBufferATR   float64
	TrendFilter      bool
}

func (c *Config) setDefaults() {
	if c.RRRatio <= 0 {
		c.RRRatio = 2.0
	}
	if c.ADXThreshold <= 0 {
		c.ADXThreshold = 20
	}
	if c.PullbackBandPct <= 0 {
		c.PullbackBandPct = 0.2
	}
	if c.MinBodyRatio <= 0 {
		c.MinBodyRatio = 0.3
	}
	if c.MinStopATR <= 0 {
		c.MinStopATR = 0.3
	}
	if c.MaxStopATR <= 0 {
		c.MaxStopATR = 3.0
	}
	if c.MaxStopPips <= 0 {
		c.MaxStopPips = 80
	}
	if c.RSIBuyHigh <= 0 {
		c.RSIBuyLow, c.RSIBuyHigh = 40, 65
	}
	if c.RSISellHigh <= 0 {
		c.RSISellLow, c.RSISellHigh = 35, 60
	}
	if c.LondonEntryEnd <= 0 {
		c.LondonEntryStart, c.LondonEntryEnd = 7, 10
	}
	if c.AsianEndHour <= 0 {
		c.AsianStartHour, c.AsianEndHour = 0, 6
	}
	if c.MinRangePips <= 0 {
		c.MinRangePips = 15
	}
	if c.MaxRangePips <= 0 {
		c.MaxRangePips = 60
	}
	if c.RangeBufferATR <= 0 {
		c.RangeBufferATR = 0.1
	}
}
