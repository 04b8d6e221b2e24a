package market

import "math"

// Direction of a trade: +1 long, -1 short, 0 flat.
type Direction int

const (
	None  Direction = 0
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "BUY"
	case Short:
		return "SELL"
	default:
		return "NONE"
	}
}

type Instrument struct {
	Name           string
	BaseCurrency   string
	QuoteCurrency  string
	PipSize        float64 // price distance of one pip, e.g. 0.0001
	Digits         int     // quote decimal places, e.g. 5
	PipValuePerLot float64 // account-currency value of one pip for 1.00 lot
}

// LotConstraints is broker-reported volume granularity.
type LotConstraints struct {
	Min  float64
	Max  float64
	Step float64
}

var Instruments = map[string]Instrument{
	"EURUSD": {
		Name:           "EURUSD",
		BaseCurrency:   "EUR",
		QuoteCurrency:  "USD",
		PipSize:        0.0001,
		Digits:         5,
		PipValuePerLot: 10.0,
	},
	"GBPUSD": {
		Name:           "GBPUSD",
		BaseCurrency:   "GBP",
		QuoteCurrency:  "USD",
		PipSize:        0.0001,
		Digits:         5,
		PipValuePerLot: 10.0,
	},
	"USDJPY": {
		Name:           "USDJPY",
		BaseCurrency:   "USD",
		QuoteCurrency:  "JPY",
		PipSize:        0.01,
		Digits:         3,
		PipValuePerLot: 10.0,
	},
}

// PriceToPips converts an absolute price distance to pips.
func (i Instrument) PriceToPips(dist float64) float64 {
	if i.PipSize <= 0 {
		return 0
	}
	return math.Abs(dist) / i.PipSize
}

// PipsToPrice converts a pip count to a price distance.
func (i Instrument) PipsToPrice(pips float64) float64 {
	return pips * i.PipSize
}

// SpreadPips returns the bid/ask spread in pips. A crossed or empty
// quote reports zero spread rather than a negative one.
func (i Instrument) SpreadPips(bid, ask float64) float64 {
	if ask <= bid {
		return 0
	}
	return i.PriceToPips(ask - bid)
}

// RoundPrice rounds x to the instrument's quote precision.
func (i Instrument) RoundPrice(x float64) float64 {
	scale := math.Pow(10, float64(i.Digits))
	return math.Round(x*scale) / scale
}

// NormalizeLots floors lots to the broker step and clamps to [Min, Max].
// A non-positive input yields zero and is never raised to Min.
func NormalizeLots(lots float64, lc LotConstraints) float64 {
	if lots <= 0 {
		return 0
	}
	if lc.Step > 0 {
		lots = math.Floor(lots/lc.Step) * lc.Step
	}
	if lots < lc.Min {
		lots = lc.Min
	}
	if lc.Max > 0 && lots > lc.Max {
		lots = lc.Max
	}
	// avoid float dust like 0.060000000000000005
	return math.Round(lots*100) / 100
}
