package market

import "time"

// Candle is one OHLCV bar. Time is the bar open.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (c Candle) Bullish() bool { return c.Close > c.Open }
func (c Candle) Bearish() bool { return c.Close < c.Open }

// BodyRatio is body size over full range, 0 when the bar has no range.
func (c Candle) BodyRatio() float64 {
	rng := c.High - c.Low
	if rng <= 0 {
		return 0
	}
	body := c.Close - c.Open
	if body < 0 {
		body = -body
	}
	return body / rng
}

// Timeframe identifies a bar interval.
type Timeframe time.Duration

const (
	H1 = Timeframe(time.Hour)
	H4 = Timeframe(4 * time.Hour)
)

func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) }

func (tf Timeframe) String() string {
	switch tf {
	case H1:
		return "H1"
	case H4:
		return "H4"
	default:
		return time.Duration(tf).String()
	}
}
