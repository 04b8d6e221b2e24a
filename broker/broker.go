// Package broker defines the execution-and-query contract the engine
// trades through. The gateway owns the account/position store and is
// re-read every cycle; only the lightweight milestone flags on Position
// live on this side of the boundary.
package broker

import (
	"time"

	"propengine/market"
)

type AccountInfo struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
}

// Position is one open trade as reported by the gateway, annotated with
// the engine's R-multiple milestone flags.
type Position struct {
	Ticket     int64
	Direction  market.Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Lots       float64
	Strategy   string
	OpenTime   time.Time

	// StopPips is the initial stop distance in pips: the risk unit "R".
	StopPips float64
	// SpreadPips is the spread observed at fill time.
	SpreadPips float64

	BreakevenSet bool
	PartialDone  bool
}

type TradeResult struct {
	Success bool
	Ticket  int64
	Price   float64
	Error   string
}

// ClosedTrade is a historical deal used for P&L attribution. StopPips
// and SpreadPips carry the entry-time risk unit and spread so the close
// journal does not need the (already removed) position.
type ClosedTrade struct {
	Ticket     int64
	Direction  market.Direction
	Entry      float64
	Exit       float64
	Lots       float64
	PnL        float64
	StopPips   float64
	SpreadPips float64
	Reason     string
	Strategy   string
	OpenTime   time.Time
	CloseTime  time.Time
}

// Gateway is the broker execution interface. Implementations must filter
// positions and orders to the engine's instrument and strategy tag.
type Gateway interface {
	Connect() error
	Disconnect()
	IsConnected() bool

	AccountInfo() AccountInfo
	Ask() float64
	Bid() float64
	SpreadPips() float64
	LotConstraints() market.LotConstraints

	HasPosition() bool
	Positions() []*Position

	OpenTrade(dir market.Direction, lots, sl, tp float64, comment string) TradeResult
	ModifyStop(ticket int64, newSL float64) bool
	PartialClose(ticket int64, lots float64) bool
	ClosePosition(ticket int64, reason string) (pnl float64, ok bool)
	CloseAll(reason string)
	CancelPending(reason string)

	// History returns closed deals recorded since the gateway connected,
	// oldest first. The engine consumes the tail it has not yet seen.
	History() []ClosedTrade
}
