package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propengine/market"
)

func testConfig() Config {
	return Config{
		InitialBalance:    6000,
		RiskPercent:       1.5,
		RiskReduced:       0.75,
		MaxDailyLossPct:   4.0,
		MaxTotalDDPct:     8.0,
		TrailingDDEnabled: false,
		TrailingDDPct:     6.0,
		TrailingKill:      true,
		MaxConsecLosses:   5,
		ReduceAfter:       3,
		MaxTradesPerDay:   4,
		MaxSpreadPips:     2.5,
	}
}

func newTestEngine(cfg Config) *Engine {
	return NewEngine(cfg, zerolog.Nop())
}

var day0 = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

func TestDrawdownFormula(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	assert.InDelta(t, 8.0, e.Drawdown(5520), 1e-9)
	assert.InDelta(t, 0.0, e.Drawdown(6000), 1e-9)
	assert.Zero(t, e.Drawdown(6500), "gains never report negative drawdown")
}

func TestKillSwitchAtTotalDrawdownLimit(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	e.UpdateState(6000, 6000, day0)
	require.Equal(t, Normal, e.Posture())

	// 6000 -> 5520 is exactly 8.0%
	e.UpdateState(5520, 5520, day0.Add(time.Hour))
	assert.Equal(t, KillSwitch, e.Posture())

	// equity recovery never clears the kill switch
	e.UpdateState(6200, 6200, day0.Add(2*time.Hour))
	assert.Equal(t, KillSwitch, e.Posture())

	// nor does a day change
	e.UpdateState(6200, 6200, day0.AddDate(0, 0, 1))
	assert.Equal(t, KillSwitch, e.Posture())

	assert.Zero(t, e.RiskPercent())
}

func TestTrailingDrawdownSeverity(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.TrailingDDEnabled = true
	cfg.TrailingDDPct = 6.0
	cfg.MaxTotalDDPct = 50 // keep the hard limit out of the way

	t.Run("kill variant", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.TrailingKill = true
		e := newTestEngine(c)
		e.UpdateState(7000, 7000, day0) // HWM 7000
		e.UpdateState(7000, 6580, day0.Add(time.Hour))
		assert.Equal(t, KillSwitch, e.Posture())
	})

	t.Run("weekly pause variant", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.TrailingKill = false
		e := newTestEngine(c)
		e.UpdateState(7000, 7000, day0)
		e.UpdateState(7000, 6580, day0.Add(time.Hour))
		assert.Equal(t, WeeklyPaused, e.Posture())

		// next calendar day, same ISO week: still paused
		e.UpdateState(7000, 7000, day0.AddDate(0, 0, 1))
		assert.Equal(t, WeeklyPaused, e.Posture())

		// next ISO week: lifted
		e.UpdateState(7000, 7000, day0.AddDate(0, 0, 7))
		assert.Equal(t, Normal, e.Posture())
	})
}

func TestDailyLossPause(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	e.UpdateState(6000, 6000, day0)

	// realized -150 plus floating -100 breaches 4% of 6000 = 240
	e.OnTradeClosed(-150, 5850)
	e.UpdateState(5850, 5750, day0.Add(time.Hour))
	assert.Equal(t, DailyPaused, e.Posture())

	// floating recovery within the same day does not relax the pause
	e.UpdateState(5850, 5900, day0.Add(2*time.Hour))
	assert.Equal(t, DailyPaused, e.Posture())
}

func TestDayRollover(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	e.UpdateState(6000, 6000, day0)

	e.OnTradeOpened()
	e.OnTradeOpened()
	e.OnTradeClosed(-50, 5950)
	require.Equal(t, 2, e.tradesToday)
	require.InDelta(t, -50.0, e.todayRealized, 1e-9)

	next := day0.AddDate(0, 0, 1)
	e.UpdateState(5950, 5950, next)
	assert.Zero(t, e.tradesToday)
	assert.Zero(t, e.todayRealized)
	assert.InDelta(t, 5950.0, e.prevDayClose, 1e-9, "daily limit rebases on previous close")

	// a second update on the same day must not reset again
	e.OnTradeOpened()
	e.UpdateState(5950, 5950, next.Add(time.Hour))
	assert.Equal(t, 1, e.tradesToday)
}

func TestDayRolloverRelaxesPauseByStreak(t *testing.T) {
	t.Parallel()

	t.Run("to reduced when streak persists", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.MaxTradesPerDay = 2
		e := newTestEngine(cfg)
		e.UpdateState(6000, 6000, day0)

		e.OnTradeClosed(-20, 5980)
		e.OnTradeClosed(-20, 5960)
		e.OnTradeClosed(-20, 5940)
		e.OnTradeOpened()
		e.OnTradeOpened()
		e.UpdateState(5940, 5940, day0.Add(time.Hour))
		require.Equal(t, DailyPaused, e.Posture())

		e.UpdateState(5940, 5940, day0.AddDate(0, 0, 1))
		assert.Equal(t, Reduced, e.Posture(), "losing streak survives the roll")
	})

	t.Run("to normal when no streak", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.MaxTradesPerDay = 1
		e := newTestEngine(cfg)
		e.UpdateState(6000, 6000, day0)

		e.OnTradeOpened()
		e.UpdateState(6000, 6000, day0.Add(time.Hour))
		require.Equal(t, DailyPaused, e.Posture())

		e.UpdateState(6000, 6000, day0.AddDate(0, 0, 1))
		assert.Equal(t, Normal, e.Posture())
	})
}

func TestConsecutiveLossCounter(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())

	e.OnTradeClosed(-10, 5990)
	e.OnTradeClosed(-10, 5980)
	assert.Equal(t, 2, e.consecLosses)

	e.OnTradeClosed(0, 5980)
	assert.Equal(t, 2, e.consecLosses, "flat close leaves the streak alone")

	e.OnTradeClosed(-10, 5970)
	assert.Equal(t, 3, e.consecLosses)

	e.OnTradeClosed(25, 5995)
	assert.Zero(t, e.consecLosses)
}

func TestReducedAfterThreeLosses(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	e.UpdateState(6000, 6000, day0)

	for i := 0; i < 3; i++ {
		e.OnTradeClosed(-10, 6000-float64(10*(i+1)))
	}
	e.UpdateState(5970, 5970, day0.Add(time.Hour))

	assert.Equal(t, Reduced, e.Posture())
	assert.InDelta(t, 0.75, e.RiskPercent(), 1e-9)
}

func TestPauseAfterMaxConsecutiveLosses(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	e.UpdateState(6000, 6000, day0)

	for i := 0; i < 5; i++ {
		e.OnTradeClosed(-5, 6000-float64(5*(i+1)))
	}
	e.UpdateState(5975, 5975, day0.Add(time.Hour))
	assert.Equal(t, DailyPaused, e.Posture())
}

func TestRuleCheckReasons(t *testing.T) {
	t.Parallel()

	t.Run("allows clean state", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(testConfig())
		assert.Nil(t, e.RuleCheck(6000, 6000, 1.0, day0))
	})

	t.Run("blocks high spread", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(testConfig())
		b := e.RuleCheck(6000, 6000, 3.1, day0)
		require.NotNil(t, b)
		assert.Equal(t, CodeSpreadHigh, b.Code)
	})

	t.Run("blocks at trade budget", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.MaxTradesPerDay = 1
		e := newTestEngine(cfg)
		e.UpdateState(6000, 6000, day0)
		e.OnTradeOpened()
		b := e.RuleCheck(6000, 6000, 1.0, day0.Add(time.Minute))
		require.NotNil(t, b)
		assert.Equal(t, CodeDailyPause, b.Code)
	})

	t.Run("blocks kill switch", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(testConfig())
		b := e.RuleCheck(5400, 5400, 1.0, day0)
		require.NotNil(t, b)
		assert.Equal(t, CodeKillSwitch, b.Code)
	})
}

func TestCheckSpread(t *testing.T) {
	t.Parallel()

	e := newTestEngine(testConfig())
	assert.Nil(t, e.CheckSpread(2.5), "at the limit is allowed")

	b := e.CheckSpread(2.6)
	require.NotNil(t, b)
	assert.Equal(t, CodeSpreadHigh, b.Code)
}

func TestLotSize(t *testing.T) {
	t.Parallel()

	inst := market.Instruments["EURUSD"]
	lc := market.LotConstraints{Min: 0.01, Max: 100, Step: 0.01}

	e := newTestEngine(testConfig())

	// 6000 * 1.5% = 90 risk dollars; 20 pips * $10/pip-lot => 0.45 lots
	assert.InDelta(t, 0.45, e.LotSize(6000, 20, inst, lc), 1e-9)

	t.Run("monotone in stop distance", func(t *testing.T) {
		t.Parallel()
		prev := e.LotSize(6000, 5, inst, lc)
		for _, stop := range []float64{10, 20, 40, 80, 160} {
			lots := e.LotSize(6000, stop, inst, lc)
			assert.LessOrEqual(t, lots, prev)
			prev = lots
		}
	})

	t.Run("zero on degenerate inputs", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, e.LotSize(6000, 0, inst, lc))
		assert.Zero(t, e.LotSize(6000, -5, inst, lc))
		assert.Zero(t, e.LotSize(0, 20, inst, lc))
		bad := inst
		bad.PipValuePerLot = 0
		assert.Zero(t, e.LotSize(6000, 20, bad, lc))
	})
}

func TestRiskPercentDrawdownTiers(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.DDTier1Pct = 3.0
	cfg.DDTier2Pct = 5.0
	cfg.DDTier2Factor = 0.4
	e := newTestEngine(cfg)

	e.UpdateState(6000, 6000, day0)
	assert.InDelta(t, 1.5, e.RiskPercent(), 1e-9)

	// 3.5% off the peak: tier 1 caps at the reduced rate
	e.UpdateState(6000, 5790, day0.Add(time.Hour))
	assert.InDelta(t, 0.75, e.RiskPercent(), 1e-9)

	// 5.5% off the peak: tier 2 caps at reduced * factor
	e.UpdateState(6000, 5670, day0.Add(2*time.Hour))
	assert.InDelta(t, 0.30, e.RiskPercent(), 1e-9)
}
