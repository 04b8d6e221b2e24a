package strategy

import (
	"fmt"
	"time"

	"propengine/indicators"
	"propengine/market"
)

func init() {
	Register("london_breakout", func(cfg Config) Strategy {
		return NewLondonBreakout(cfg)
	})
}

// LondonBreakout trades the break of the Asian-session range during the
// first hours of the London session. The range must be meaningful (too
// narrow breaks on noise, too wide has no follow-through) and the
// breakout bar must close decisively beyond it.
type LondonBreakout struct {
	cfg  Config
	diag Diag
}

func NewLondonBreakout(cfg Config) *LondonBreakout {
	cfg.setDefaults()
	return &LondonBreakout{cfg: cfg}
}

func (s *LondonBreakout) Name() string { return "london_breakout" }

func (s *LondonBreakout) Diag() Diag { return s.diag }

func (s *LondonBreakout) Evaluate(ctx *Context) *Signal {
	s.diag.Evaluations++

	if len(ctx.LTF) < 8 || ctx.LTFInd.ATR == 0 {
		s.diag.MissingData++
		return nil
	}

	bar := ctx.LTF[len(ctx.LTF)-1]
	hour := bar.Time.UTC().Hour()
	if hour < s.cfg.LondonEntryStart || hour >= s.cfg.LondonEntryEnd {
		s.diag.NoWindow++
		return nil
	}

	high, low, ok := s.asianRange(ctx.LTF, bar)
	if !ok {
		s.diag.NoRange++
		return nil
	}

	inst := ctx.Instrument
	rangePips := inst.PriceToPips(high - low)
	if rangePips < s.cfg.MinRangePips || rangePips > s.cfg.MaxRangePips {
		s.diag.NoRange++
		return nil
	}

	atr := ctx.LTFInd.ATR
	buffer := atr * s.cfg.RangeBufferATR

	switch {
	case bar.Close > high && bar.Bullish() && bar.BodyRatio() >= s.cfg.MinBodyRatio:
		if s.cfg.TrendFilter && !s.trendAllows(ctx.LTFInd, bar.Close, market.Long) {
			s.diag.NoTrend++
			return nil
		}
		entry := ctx.Ask
		if entry <= 0 {
			entry = bar.Close
		}
		sl := low - buffer
		dist := entry - sl
		if !s.stopOK(dist, atr, inst) {
			return nil
		}
		return &Signal{
			Direction:  market.Long,
			Entry:      inst.RoundPrice(entry),
			Stop:       inst.RoundPrice(sl),
			Target:     inst.RoundPrice(entry + dist*s.cfg.RRRatio),
			StopPips:   inst.PriceToPips(dist),
			TargetPips: inst.PriceToPips(dist * s.cfg.RRRatio),
			Reason:     fmt.Sprintf("london break up range=%.1fp", rangePips),
		}

	case bar.Close < low && bar.Bearish() && bar.BodyRatio() >= s.cfg.MinBodyRatio:
		if s.cfg.TrendFilter && !s.trendAllows(ctx.LTFInd, bar.Close, market.Short) {
			s.diag.NoTrend++
			return nil
		}
		entry := ctx.Bid
		if entry <= 0 {
			entry = bar.Close
		}
		sl := high + buffer
		dist := sl - entry
		if !s.stopOK(dist, atr, inst) {
			return nil
		}
		return &Signal{
			Direction:  market.Short,
			Entry:      inst.RoundPrice(entry),
			Stop:       inst.RoundPrice(sl),
			Target:     inst.RoundPrice(entry - dist*s.cfg.RRRatio),
			StopPips:   inst.PriceToPips(dist),
			TargetPips: inst.PriceToPips(dist * s.cfg.RRRatio),
			Reason:     fmt.Sprintf("london break down range=%.1fp", rangePips),
		}
	}

	s.diag.NoBreakout++
	return nil
}

// asianRange finds the high/low of today's Asian-session bars. At least
// three bars are required for the range to mean anything.
func (s *LondonBreakout) asianRange(candles []market.Candle, ref market.Candle) (high, low float64, ok bool) {
	day := ref.Time.UTC().Truncate(24 * time.Hour)
	count := 0
	for _, c := range candles {
		t := c.Time.UTC()
		if !t.Truncate(24 * time.Hour).Equal(day) {
			continue
		}
		h := t.Hour()
		if h < s.cfg.AsianStartHour || h >= s.cfg.AsianEndHour {
			continue
		}
		if count == 0 || c.High > high {
			high = c.High
		}
		if count == 0 || c.Low < low {
			low = c.Low
		}
		count++
	}
	return high, low, count >= 3
}

// trendAllows applies the optional EMA filter: price on the trend side
// of the trend EMA, with the trend and fast EMAs sloping the same way.
// Slope checks are skipped while the prior readings are still warming up.
func (s *LondonBreakout) trendAllows(ind indicators.Snapshot, close float64, dir market.Direction) bool {
	if ind.EMATrend == 0 {
		return true
	}
	if dir == market.Long {
		if close < ind.EMATrend {
			return false
		}
		if ind.EMATrendPrev > 0 && ind.EMATrend < ind.EMATrendPrev {
			return false
		}
		if ind.EMAFastPrev > 0 && ind.EMAFast < ind.EMAFastPrev {
			return false
		}
		return true
	}
	if close > ind.EMATrend {
		return false
	}
	if ind.EMATrendPrev > 0 && ind.EMATrend > ind.EMATrendPrev {
		return false
	}
	if ind.EMAFastPrev > 0 && ind.EMAFast > ind.EMAFastPrev {
		return false
	}
	return true
}

func (s *LondonBreakout) stopOK(dist, atr float64, inst market.Instrument) bool {
	if dist <= 0 || dist > s.cfg.MaxStopATR*atr {
		s.diag.BadStop++
		return false
	}
	pips := inst.PriceToPips(dist)
	if s.cfg.MinStopPips > 0 && pips < s.cfg.MinStopPips {
		s.diag.BadStop++
		return false
	}
	if s.cfg.MaxStopPips > 0 && pips > s.cfg.MaxStopPips {
		s.diag.BadStop++
		return false
	}
	return true
}
