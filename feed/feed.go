// Package feed supplies historical OHLCV bars to the backtest runner.
package feed

import (
	"propengine/market"
)

// CandleSource streams closed bars in chronological order.
type CandleSource interface {
	// Next returns the next bar. ok is false at end of stream.
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// Static serves an in-memory slice. Used by tests and for bars already
// loaded by the caller.
type Static struct {
	bars []market.Candle
	pos  int
}

func NewStatic(bars []market.Candle) *Static {
	return &Static{bars: bars}
}

func (s *Static) Next() (market.Candle, bool, error) {
	if s.pos >= len(s.bars) {
		return market.Candle{}, false, nil
	}
	c := s.bars[s.pos]
	s.pos++
	return c, true, nil
}

func (s *Static) Close() error { return nil }
