package strategy

import (
	"fmt"

	"propengine/market"
)

func init() {
	Register("trend_pullback", func(cfg Config) Strategy {
		return NewTrendPullback(cfg)
	})
}

// TrendPullback trades pullbacks to the fast EMA in the direction of the
// higher-timeframe trend. The trend side is decided on H4 (price and slow
// EMA above/below the trend EMA, ADX strength, DI dominance); the entry
// trigger is an H1 bar that dipped into a tolerance band around the fast
// EMA and closed back with the trend.
type TrendPullback struct {
	cfg  Config
	diag Diag
}

func NewTrendPullback(cfg Config) *TrendPullback {
	cfg.setDefaults()
	return &TrendPullback{cfg: cfg}
}

func (s *TrendPullback) Name() string { return "trend_pullback" }

func (s *TrendPullback) Diag() Diag { return s.diag }

func (s *TrendPullback) Evaluate(ctx *Context) *Signal {
	s.diag.Evaluations++

	if len(ctx.LTF) < 3 {
		s.diag.MissingData++
		return nil
	}
	ltf, htf := ctx.LTFInd, ctx.HTFInd
	if ltf.EMAFast == 0 || ltf.ATR == 0 || htf.EMASlow == 0 || htf.EMATrend == 0 || htf.ADX == 0 {
		s.diag.MissingData++
		return nil
	}

	htfClose := ctx.HTF[len(ctx.HTF)-1].Close

	dir := market.None
	switch {
	case htfClose > htf.EMATrend &&
		htf.EMASlow > htf.EMATrend &&
		htf.ADX > s.cfg.ADXThreshold &&
		htf.PlusDI > htf.MinusDI+s.cfg.DISeparation:
		dir = market.Long
	case htfClose < htf.EMATrend &&
		htf.EMASlow < htf.EMATrend &&
		htf.ADX > s.cfg.ADXThreshold &&
		htf.MinusDI > htf.PlusDI+s.cfg.DISeparation:
		dir = market.Short
	default:
		s.diag.NoTrend++
		return nil
	}

	bar := ctx.LTF[len(ctx.LTF)-1]
	band := ltf.EMAFast * s.cfg.PullbackBandPct / 100

	if dir == market.Long {
		if bar.Low > ltf.EMAFast+band || bar.Close <= ltf.EMAFast {
			s.diag.NoPullback++
			return nil
		}
		if ltf.RSI < s.cfg.RSIBuyLow || ltf.RSI > s.cfg.RSIBuyHigh {
			s.diag.RSIOutOfZone++
			return nil
		}
		if !bar.Bullish() || bar.BodyRatio() < s.cfg.MinBodyRatio {
			s.diag.WeakCandle++
			return nil
		}
		return s.buildLong(ctx, ltf.EMAFast, ltf.ATR, ltf.RSI, htf.ADX)
	}

	if bar.High < ltf.EMAFast-band || bar.Close >= ltf.EMAFast {
		s.diag.NoPullback++
		return nil
	}
	if ltf.RSI < s.cfg.RSISellLow || ltf.RSI > s.cfg.RSISellHigh {
		s.diag.RSIOutOfZone++
		return nil
	}
	if !bar.Bearish() || bar.BodyRatio() < s.cfg.MinBodyRatio {
		s.diag.WeakCandle++
		return nil
	}
	return s.buildShort(ctx, ltf.EMAFast, ltf.ATR, ltf.RSI, htf.ADX)
}

func (s *TrendPullback) buildLong(ctx *Context, emaFast, atr, rsi, adx float64) *Signal {
	entry := ctx.Ask
	if entry <= 0 {
		entry = ctx.LTF[len(ctx.LTF)-1].Close
	}

	swing := ctx.LTF[len(ctx.LTF)-1].Low
	for _, c := range ctx.LTF[len(ctx.LTF)-3:] {
		if c.Low < swing {
			swing = c.Low
		}
	}
	sl := swing - 0.5*atr
	if limit := emaFast - 0.3*atr; sl > limit {
		sl = limit
	}

	dist := entry - sl
	if !s.stopOK(dist, atr, ctx.Instrument) {
		return nil
	}

	inst := ctx.Instrument
	return &Signal{
		Direction:  market.Long,
		Entry:      inst.RoundPrice(entry),
		Stop:       inst.RoundPrice(sl),
		Target:     inst.RoundPrice(entry + dist*s.cfg.RRRatio),
		StopPips:   inst.PriceToPips(dist),
		TargetPips: inst.PriceToPips(dist * s.cfg.RRRatio),
		Reason:     fmt.Sprintf("pullback long rsi=%.1f adx=%.1f", rsi, adx),
	}
}

func (s *TrendPullback) buildShort(ctx *Context, emaFast, atr, rsi, adx float64) *Signal {
	entry := ctx.Bid
	if entry <= 0 {
		entry = ctx.LTF[len(ctx.LTF)-1].Close
	}

	swing := ctx.LTF[len(ctx.LTF)-1].High
	for _, c := range ctx.LTF[len(ctx.LTF)-3:] {
		if c.High > swing {
			swing = c.High
		}
	}
	sl := swing + 0.5*atr
	if floor := emaFast + 0.3*atr; sl < floor {
		sl = floor
	}

	dist := sl - entry
	if !s.stopOK(dist, atr, ctx.Instrument) {
		return nil
	}

	inst := ctx.Instrument
	return &Signal{
		Direction:  market.Short,
		Entry:      inst.RoundPrice(entry),
		Stop:       inst.RoundPrice(sl),
		Target:     inst.RoundPrice(entry - dist*s.cfg.RRRatio),
		StopPips:   inst.PriceToPips(dist),
		TargetPips: inst.PriceToPips(dist * s.cfg.RRRatio),
		Reason:     fmt.Sprintf("pullback short rsi=%.1f adx=%.1f", rsi, adx),
	}
}

// stopOK rejects stop distances that are degenerate relative to current
// volatility: too tight gets noise-stopped, too wide distorts sizing.
func (s *TrendPullback) stopOK(dist, atr float64, inst market.Instrument) bool {
	if dist < s.cfg.MinStopATR*atr || dist > s.cfg.MaxStopATR*atr {
		s.diag.BadStop++
		return false
	}
	if s.cfg.MinStopPips > 0 && inst.PriceToPips(dist) < s.cfg.MinStopPips {
		s.diag.BadStop++
		return false
	}
	if s.cfg.MaxStopPips > 0 && inst.PriceToPips(dist) > s.cfg.MaxStopPips {
		s.diag.BadStop++
		return false
	}
	return true
}

// Diag counts why evaluations produced no signal. Useful in backtest
// reports when a run looks suspiciously quiet.
type Diag struct {
	Evaluations  int
	MissingData  int
	NoTrend      int
	NoPullback   int
	RSIOutOfZone int
	WeakCandle   int
	BadStop      int
	NoWindow     int
	NoRange      int
	NoBreakout   int
}
