// Package indicators computes closed-bar indicator readings over OHLC
// series. Strategies treat a zero reading as "missing" and stand aside,
// so warmup bars never produce a trade.
package indicators

import (
	talib "github.com/markcheno/go-talib"

	"propengine/market"
)

type Config struct {
	EMAFast   int
	EMASlow   int
	EMATrend  int
	RSIPeriod int
	ATRPeriod int
	ADXPeriod int
	SlopeBars int // lookback for the trend-EMA slope filter
}

func DefaultConfig() Config {
	return Config{
		EMAFast:   21,
		EMASlow:   50,
		EMATrend:  200,
		RSIPeriod: 14,
		ATRPeriod: 14,
		ADXPeriod: 14,
		SlopeBars: 10,
	}
}

// Snapshot holds the indicator values at the most recently closed bar.
// Zero values mean the series was too short to compute the reading.
type Snapshot struct {
	EMAFast      float64
	EMAFastPrev  float64 // one bar back, for fast-EMA slope
	EMASlow      float64
	EMATrend     float64
	EMATrendPrev float64 // SlopeBars back, for trend-EMA slope
	RSI          float64
	ATR          float64
	ADX          float64
	PlusDI       float64
	MinusDI      float64
}

// Compute reads all configured indicators at the last bar of candles.
// Candles must be closed bars only, oldest first.
func Compute(candles []market.Candle, cfg Config) Snapshot {
	var s Snapshot
	n := len(candles)
	if n == 0 {
		return s
	}

	high, low, closes := series(candles)
	last := n - 1

	if n > cfg.EMAFast {
		ema := talib.Ema(closes, cfg.EMAFast)
		s.EMAFast = ema[last]
		if last > 0 {
			s.EMAFastPrev = ema[last-1]
		}
	}
	if n > cfg.EMASlow {
		s.EMASlow = talib.Ema(closes, cfg.EMASlow)[last]
	}
	if n > cfg.EMATrend {
		ema := talib.Ema(closes, cfg.EMATrend)
		s.EMATrend = ema[last]
		if last >= cfg.SlopeBars {
			s.EMATrendPrev = ema[last-cfg.SlopeBars]
		}
	}
	if n > cfg.RSIPeriod {
		s.RSI = talib.Rsi(closes, cfg.RSIPeriod)[last]
	}
	if n > cfg.ATRPeriod {
		s.ATR = talib.Atr(high, low, closes, cfg.ATRPeriod)[last]
	}
	if n > 2*cfg.ADXPeriod {
		s.ADX = talib.Adx(high, low, closes, cfg.ADXPeriod)[last]
		s.PlusDI = talib.PlusDI(high, low, closes, cfg.ADXPeriod)[last]
		s.MinusDI = talib.MinusDI(high, low, closes, cfg.ADXPeriod)[last]
	}

	return s
}

func series(candles []market.Candle) (high, low, closes []float64) {
	n := len(candles)
	high = make([]float64, n)
	low = make([]float64, n)
	closes = make([]float64, n)
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		closes[i] = c.Close
	}
	return high, low, closes
}

// Resample aggregates H1 bars into H4 bars. Partial trailing groups are
// kept: the caller decides whether the last bar counts as closed.
func Resample(h1 []market.Candle) []market.Candle {
	var out []market.Candle
	for _, c := range h1 {
		bucket := c.Time.UTC().Truncate(market.H4.Duration())
		if len(out) == 0 || !out[len(out)-1].Time.Equal(bucket) {
			out = append(out, market.Candle{
				Time: bucket,
				Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
				Volume: c.Volume,
			})
			continue
		}
		last := &out[len(out)-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume += c.Volume
	}
	return out
}
