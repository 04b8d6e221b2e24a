// Package journal persists trade and equity records for review and
// compliance. Two backends: CSV for quick inspection, SQLite for
// querying across runs.
package journal

import "time"

// TradeRecord is one closed (or partially closed) deal with the risk
// context it was taken under.
type TradeRecord struct {
	RecordID   string
	Ticket     int64
	Instrument string
	Strategy   string
	Direction  string
	Lots       float64
	EntryPrice float64
	ExitPrice  float64
	StopPips   float64
	RiskPct    float64
	SpreadPips float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Posture    string
	Reason     string
}

// EquitySnapshot is one account health observation.
type EquitySnapshot struct {
	Time         time.Time
	Balance      float64
	Equity       float64
	DrawdownPct  float64
	DailyPnL     float64
	Posture      string
	ConsecLosses int
	TradesToday  int
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything. Used when journaling is disabled.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
