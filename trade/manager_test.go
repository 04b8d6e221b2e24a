package trade

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propengine/broker"
	"propengine/market"
	"propengine/strategy"
)

// fakeGateway scripts broker behavior for lifecycle tests.
type fakeGateway struct {
	bid, ask float64
	lc       market.LotConstraints

	positions []*broker.Position

	openResults []broker.TradeResult
	openCalls   int

	modifyOK    bool
	modifyCalls []float64

	partialOK    bool
	partialCalls []float64

	closedAll       bool
	canceledPending bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		bid: 1.1000, ask: 1.1002,
		lc:        market.LotConstraints{Min: 0.01, Max: 100, Step: 0.01},
		modifyOK:  true,
		partialOK: true,
	}
}

func (f *fakeGateway) Connect() error    { return nil }
func (f *fakeGateway) Disconnect()       {}
func (f *fakeGateway) IsConnected() bool { return true }

func (f *fakeGateway) AccountInfo() broker.AccountInfo {
	return broker.AccountInfo{Balance: 6000, Equity: 6000}
}

func (f *fakeGateway) Ask() float64                          { return f.ask }
func (f *fakeGateway) Bid() float64                          { return f.bid }
func (f *fakeGateway) SpreadPips() float64                   { return 2.0 }
func (f *fakeGateway) LotConstraints() market.LotConstraints { return f.lc }
func (f *fakeGateway) HasPosition() bool                     { return len(f.positions) > 0 }
func (f *fakeGateway) Positions() []*broker.Position         { return f.positions }

func (f *fakeGateway) OpenTrade(dir market.Direction, lots, sl, tp float64, comment string) broker.TradeResult {
	f.openCalls++
	if len(f.openResults) == 0 {
		return broker.TradeResult{Success: true, Ticket: 1, Price: f.ask}
	}
	res := f.openResults[0]
	if len(f.openResults) > 1 {
		f.openResults = f.openResults[1:]
	}
	return res
}

func (f *fakeGateway) ModifyStop(ticket int64, sl float64) bool {
	f.modifyCalls = append(f.modifyCalls, sl)
	return f.modifyOK
}

func (f *fakeGateway) PartialClose(ticket int64, lots float64) bool {
	f.partialCalls = append(f.partialCalls, lots)
	return f.partialOK
}

func (f *fakeGateway) ClosePosition(ticket int64, reason string) (float64, bool) { return 0, true }
func (f *fakeGateway) CloseAll(reason string)                                    { f.closedAll = true }
func (f *fakeGateway) CancelPending(reason string)                               { f.canceledPending = true }
func (f *fakeGateway) History() []broker.ClosedTrade                             { return nil }

func testManagerConfig() Config {
	return Config{
		Instrument:       market.Instruments["EURUSD"],
		StrategyTag:      "trend_pullback",
		BreakevenEnabled: true,
		BreakevenR:       1.0,
		PartialEnabled:   true,
		PartialR:         1.5,
		PartialPct:       50,
		TrailingEnabled:  true,
		TrailingStartR:   2.0,
		TrailingATRMult:  1.5,
		Retries:          3,
		RetryDelay:       time.Millisecond,
	}
}

func newTestManager(gw broker.Gateway) *Manager {
	m := NewManager(testManagerConfig(), gw, zerolog.Nop())
	m.sleep = func(time.Duration) {}
	return m
}

func longPosition() *broker.Position {
	return &broker.Position{
		Ticket:    1,
		Direction: market.Long,
		Entry:     1.1000,
		StopLoss:  1.0970,
		Lots:      0.40,
		StopPips:  30,
	}
}

func testSignal() *strategy.Signal {
	return &strategy.Signal{
		Direction: market.Long,
		Entry:     1.1002,
		Stop:      1.0972,
		Target:    1.1062,
		StopPips:  30,
	}
}

func TestExecuteRetries(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after transient rejects", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		gw.openResults = []broker.TradeResult{
			{Success: false, Error: "requote"},
			{Success: false, Error: "requote"},
			{Success: true, Ticket: 7, Price: 1.1003},
		}
		m := newTestManager(gw)

		res, err := m.Execute(testSignal(), 0.40)
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.Ticket)
		assert.Equal(t, 3, gw.openCalls)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		gw.openResults = []broker.TradeResult{{Success: false, Error: "off quotes"}}
		m := newTestManager(gw)

		_, err := m.Execute(testSignal(), 0.40)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, 3, gw.openCalls)
	})
}

func TestBreakeven(t *testing.T) {
	t.Parallel()

	t.Run("activates at one R", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1030 // +30 pips on a 30-pip stop
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		require.True(t, pos.BreakevenSet)
		// entry plus one pip
		assert.InDelta(t, 1.1001, pos.StopLoss, 1e-9)
	})

	t.Run("does not fire under water", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.0975 // adverse move
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		assert.False(t, pos.BreakevenSet)
		assert.Empty(t, gw.modifyCalls)
	})

	t.Run("retries next tick after broker failure", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1030
		gw.modifyOK = false
		m := newTestManager(gw)

		m.ManageOpen(0.0020)
		assert.False(t, pos.BreakevenSet, "flag stays clear so the move is retried")

		gw.modifyOK = true
		m.ManageOpen(0.0020)
		assert.True(t, pos.BreakevenSet)
	})

	t.Run("never loosens an already tighter stop", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		pos.StopLoss = 1.1010 // already beyond breakeven
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1030
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		assert.Empty(t, gw.modifyCalls)
		assert.InDelta(t, 1.1010, pos.StopLoss, 1e-9)
	})
}

func TestPartialClose(t *testing.T) {
	t.Parallel()

	t.Run("closes half at the partial milestone", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1045 // +45 pips = 1.5R
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		require.True(t, pos.PartialDone)
		require.Len(t, gw.partialCalls, 1)
		assert.InDelta(t, 0.20, gw.partialCalls[0], 1e-9)
		assert.InDelta(t, 0.20, pos.Lots, 1e-9)
	})

	t.Run("skips permanently when volume cannot split", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		pos.Lots = 0.01 // at the broker minimum
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1045
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		assert.True(t, pos.PartialDone, "marked done so it is not retried")
		assert.Empty(t, gw.partialCalls)
	})

	t.Run("retries after broker failure", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1045
		gw.partialOK = false
		m := newTestManager(gw)

		m.ManageOpen(0.0020)
		assert.False(t, pos.PartialDone)

		gw.partialOK = true
		m.ManageOpen(0.0020)
		assert.True(t, pos.PartialDone)
	})
}

func TestTrailing(t *testing.T) {
	t.Parallel()

	t.Run("only after breakeven", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		pos.PartialDone = true
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1060 // +60 pips = 2R, but breakeven not set yet
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		// The same pass sets breakeven first, then trails from it.
		require.True(t, pos.BreakevenSet)
		// bid - 1.5 * ATR = 1.1060 - 0.0030
		assert.InDelta(t, 1.1030, pos.StopLoss, 1e-9)
	})

	t.Run("ratchets only forward", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		pos.BreakevenSet = true
		pos.PartialDone = true
		pos.StopLoss = 1.1040
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1060 // candidate 1.1030 is behind the current stop
		m := newTestManager(gw)

		m.ManageOpen(0.0020)

		assert.Empty(t, gw.modifyCalls)
		assert.InDelta(t, 1.1040, pos.StopLoss, 1e-9)
	})

	t.Run("never trails back through entry", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		pos.BreakevenSet = true
		pos.PartialDone = true
		pos.StopLoss = 1.1001
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1060
		m := newTestManager(gw)

		// huge ATR would put the trail below entry
		m.ManageOpen(0.0100)

		assert.Empty(t, gw.modifyCalls)
	})
}

func TestForceBreakeven(t *testing.T) {
	t.Parallel()

	t.Run("moves stop to entry when favorable", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1010
		m := newTestManager(gw)

		m.ForceBreakeven()

		require.True(t, pos.BreakevenSet)
		assert.InDelta(t, 1.1000, pos.StopLoss, 1e-9)
	})

	t.Run("leaves losing positions alone", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.0990
		m := newTestManager(gw)

		m.ForceBreakeven()

		assert.False(t, pos.BreakevenSet)
		assert.InDelta(t, 1.0970, pos.StopLoss, 1e-9)
	})

	t.Run("skips positions already at breakeven", func(t *testing.T) {
		t.Parallel()
		gw := newFakeGateway()
		pos := longPosition()
		pos.BreakevenSet = true
		gw.positions = []*broker.Position{pos}
		gw.bid = 1.1010
		m := newTestManager(gw)

		m.ForceBreakeven()

		assert.Empty(t, gw.modifyCalls)
	})
}

func TestCloseAllAndCancelPending(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	m := newTestManager(gw)

	m.CloseAll("kill switch")
	m.CancelPending("news window")

	assert.True(t, gw.closedAll)
	assert.True(t, gw.canceledPending)
}
