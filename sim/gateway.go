// Package sim is an in-memory broker gateway for backtests and dry
// runs. Fills are immediate at the simulated quote plus configured
// slippage; stops and targets are swept against each finished bar.
package sim

import (
	"fmt"
	"sync"
	"time"

	"propengine/broker"
	"propengine/market"
)

type Config struct {
	Instrument   market.Instrument
	Balance      float64
	SpreadPips   float64
	SlippagePips float64
	Lots         market.LotConstraints
}

func (c *Config) setDefaults() {
	if c.Lots == (market.LotConstraints{}) {
		c.Lots = market.LotConstraints{Min: 0.01, Max: 100, Step: 0.01}
	}
	if c.SpreadPips <= 0 {
		c.SpreadPips = 1.0
	}
}

// Gateway implements broker.Gateway against a virtual account.
type Gateway struct {
	mu  sync.Mutex
	cfg Config

	connected bool
	balance   float64
	bid, ask  float64
	now       time.Time

	nextTicket int64
	positions  []*broker.Position
	history    []broker.ClosedTrade
}

func NewGateway(cfg Config) *Gateway {
	cfg.setDefaults()
	return &Gateway{
		cfg:        cfg,
		balance:    cfg.Balance,
		nextTicket: 1,
	}
}

func (g *Gateway) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}

func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// SetQuote moves the simulated market to a new mid price.
func (g *Gateway) SetQuote(mid float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	half := g.cfg.Instrument.PipsToPrice(g.cfg.SpreadPips) / 2
	g.bid = g.cfg.Instrument.RoundPrice(mid - half)
	g.ask = g.cfg.Instrument.RoundPrice(mid + half)
	g.now = now
}

// SetSpread widens or tightens the simulated spread around the current
// mid, for scenarios where conditions change during a cycle.
func (g *Gateway) SetSpread(pips float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.SpreadPips = pips
	if g.bid <= 0 || g.ask <= 0 {
		return
	}
	mid := (g.bid + g.ask) / 2
	half := g.cfg.Instrument.PipsToPrice(pips) / 2
	g.bid = g.cfg.Instrument.RoundPrice(mid - half)
	g.ask = g.cfg.Instrument.RoundPrice(mid + half)
}

func (g *Gateway) AccountInfo() broker.AccountInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	equity := g.balance + g.floatingLocked()
	return broker.AccountInfo{
		Balance:    g.balance,
		Equity:     equity,
		FreeMargin: equity,
	}
}

func (g *Gateway) Ask() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ask
}

func (g *Gateway) Bid() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bid
}

func (g *Gateway) SpreadPips() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ask <= 0 || g.bid <= 0 {
		return 0
	}
	return g.cfg.Instrument.SpreadPips(g.bid, g.ask)
}

func (g *Gateway) LotConstraints() market.LotConstraints { return g.cfg.Lots }

func (g *Gateway) HasPosition() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.positions) > 0
}

func (g *Gateway) Positions() []*broker.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*broker.Position, len(g.positions))
	copy(out, g.positions)
	return out
}

func (g *Gateway) OpenTrade(dir market.Direction, lots, sl, tp float64, comment string) broker.TradeResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if dir == market.None || lots <= 0 {
		return broker.TradeResult{Error: "invalid order"}
	}
	if g.bid <= 0 || g.ask <= 0 {
		return broker.TradeResult{Error: "no market price"}
	}

	slip := g.cfg.Instrument.PipsToPrice(g.cfg.SlippagePips)
	fill := g.ask + slip
	if dir == market.Short {
		fill = g.bid - slip
	}
	fill = g.cfg.Instrument.RoundPrice(fill)

	stopPips := g.cfg.Instrument.PriceToPips(fill - sl)
	ticket := g.nextTicket
	g.nextTicket++

	g.positions = append(g.positions, &broker.Position{
		Ticket:     ticket,
		Direction:  dir,
		Entry:      fill,
		StopLoss:   sl,
		TakeProfit: tp,
		Lots:       lots,
		Strategy:   comment,
		OpenTime:   g.now,
		StopPips:   stopPips,
		SpreadPips: g.cfg.Instrument.SpreadPips(g.bid, g.ask),
	})

	return broker.TradeResult{Success: true, Ticket: ticket, Price: fill}
}

func (g *Gateway) ModifyStop(ticket int64, newSL float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.positions {
		if p.Ticket == ticket {
			p.StopLoss = newSL
			return true
		}
	}
	return false
}

func (g *Gateway) PartialClose(ticket int64, lots float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.positions {
		if p.Ticket != ticket {
			continue
		}
		if lots <= 0 || lots >= p.Lots {
			return false
		}
		exit := g.closePriceLocked(p.Direction)
		g.settleLocked(p, lots, exit, g.now, "PARTIAL")
		p.Lots -= lots
		return true
	}
	return false
}

func (g *Gateway) ClosePosition(ticket int64, reason string) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, p := range g.positions {
		if p.Ticket != ticket {
			continue
		}
		exit := g.closePriceLocked(p.Direction)
		pnl := g.settleLocked(p, p.Lots, exit, g.now, reason)
		g.positions = append(g.positions[:i], g.positions[i+1:]...)
		return pnl, true
	}
	return 0, false
}

func (g *Gateway) CloseAll(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.positions {
		exit := g.closePriceLocked(p.Direction)
		g.settleLocked(p, p.Lots, exit, g.now, reason)
	}
	g.positions = nil
}

// CancelPending is a no-op: the simulator fills market orders only.
func (g *Gateway) CancelPending(reason string) {}

func (g *Gateway) History() []broker.ClosedTrade {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.ClosedTrade, len(g.history))
	copy(out, g.history)
	return out
}

// CheckBar sweeps stops and targets against a finished bar and then
// moves the quote to its close. The stop is checked before the target:
// when a bar straddles both, the loss is taken. That conservative
// ordering understates results rather than flattering them.
func (g *Gateway) CheckBar(c market.Candle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	barEnd := c.Time
	survivors := g.positions[:0]
	for _, p := range g.positions {
		exit, reason := sweep(p, c)
		if reason == "" {
			survivors = append(survivors, p)
			continue
		}
		g.settleLocked(p, p.Lots, exit, barEnd, reason)
	}
	g.positions = survivors

	half := g.cfg.Instrument.PipsToPrice(g.cfg.SpreadPips) / 2
	g.bid = g.cfg.Instrument.RoundPrice(c.Close - half)
	g.ask = g.cfg.Instrument.RoundPrice(c.Close + half)
	g.now = barEnd
}

func sweep(p *broker.Position, c market.Candle) (exit float64, reason string) {
	if p.Direction == market.Long {
		if p.StopLoss > 0 && c.Low <= p.StopLoss {
			return p.StopLoss, "SL"
		}
		if p.TakeProfit > 0 && c.High >= p.TakeProfit {
			return p.TakeProfit, "TP"
		}
		return 0, ""
	}
	if p.StopLoss > 0 && c.High >= p.StopLoss {
		return p.StopLoss, "SL"
	}
	if p.TakeProfit > 0 && c.Low <= p.TakeProfit {
		return p.TakeProfit, "TP"
	}
	return 0, ""
}

// settleLocked realizes P&L for lots of p at exit and appends the deal
// to history. The caller removes or shrinks the position.
func (g *Gateway) settleLocked(p *broker.Position, lots, exit float64, when time.Time, reason string) float64 {
	inst := g.cfg.Instrument
	move := (exit - p.Entry) * float64(p.Direction)
	pips := inst.PriceToPips(move)
	if move < 0 {
		pips = -pips
	}
	pnl := pips * inst.PipValuePerLot * lots

	g.balance += pnl
	g.history = append(g.history, broker.ClosedTrade{
		Ticket:     p.Ticket,
		Direction:  p.Direction,
		Entry:      p.Entry,
		Exit:       exit,
		Lots:       lots,
		PnL:        pnl,
		StopPips:   p.StopPips,
		SpreadPips: p.SpreadPips,
		Reason:     reason,
		Strategy:   p.Strategy,
		OpenTime:   p.OpenTime,
		CloseTime:  when,
	})
	return pnl
}

func (g *Gateway) closePriceLocked(dir market.Direction) float64 {
	if dir == market.Long {
		return g.bid
	}
	return g.ask
}

func (g *Gateway) floatingLocked() float64 {
	var total float64
	inst := g.cfg.Instrument
	for _, p := range g.positions {
		exit := g.closePriceLocked(p.Direction)
		if exit <= 0 {
			continue
		}
		move := (exit - p.Entry) * float64(p.Direction)
		pips := inst.PriceToPips(move)
		if move < 0 {
			pips = -pips
		}
		total += pips * inst.PipValuePerLot * p.Lots
	}
	return total
}

func (g *Gateway) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("sim[balance=%.2f positions=%d deals=%d]", g.balance, len(g.positions), len(g.history))
}
