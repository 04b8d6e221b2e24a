package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propengine/internal/id"
)

func sampleTrade() TradeRecord {
	open := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return TradeRecord{
		RecordID:   id.New(),
		Ticket:     7,
		Instrument: "EURUSD",
		Strategy:   "trend_pullback",
		Direction:  "BUY",
		Lots:       0.45,
		EntryPrice: 1.1002,
		ExitPrice:  1.1062,
		StopPips:   30,
		RiskPct:    1.5,
		SpreadPips: 1.2,
		OpenTime:   open,
		CloseTime:  open.Add(3 * time.Hour),
		RealizedPL: 270,
		Posture:    "NORMAL",
		Reason:     "TP",
	}
}

func sampleEquity() EquitySnapshot {
	return EquitySnapshot{
		Time:         time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Balance:      6270,
		Equity:       6270,
		DrawdownPct:  0,
		DailyPnL:     270,
		Posture:      "NORMAL",
		ConsecLosses: 0,
		TradesToday:  1,
	}
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.RecordEquity(sampleEquity()))
	require.NoError(t, j.Close())

	tf, err := os.Open(tradesPath)
	require.NoError(t, err)
	defer tf.Close()

	rows, err := csv.NewReader(tf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one record")
	assert.Equal(t, "record_id", rows[0][0])
	assert.Equal(t, "EURUSD", rows[1][2])
	assert.Equal(t, "BUY", rows[1][4])
	assert.Equal(t, "270", rows[1][13])

	ef, err := os.Open(equityPath)
	require.NoError(t, err)
	defer ef.Close()

	eRows, err := csv.NewReader(ef).ReadAll()
	require.NoError(t, err)
	require.Len(t, eRows, 2)
	assert.Equal(t, "NORMAL", eRows[1][5])
}

func TestSQLiteJournal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	first := sampleTrade()
	require.NoError(t, j.RecordTrade(first))

	second := sampleTrade()
	second.RecordID = id.New()
	second.Ticket = 8
	second.RealizedPL = -120
	second.Reason = "SL"
	second.CloseTime = first.CloseTime.Add(time.Hour)
	require.NoError(t, j.RecordTrade(second))

	require.NoError(t, j.RecordEquity(sampleEquity()))

	trades, err := j.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(7), trades[0].Ticket, "ordered by close time")
	assert.Equal(t, "SL", trades[1].Reason)
	assert.InDelta(t, 1.5, trades[0].RiskPct, 1e-9)
}

func TestNopJournal(t *testing.T) {
	t.Parallel()

	var j Journal = Nop{}
	assert.NoError(t, j.RecordTrade(TradeRecord{}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{}))
	assert.NoError(t, j.Close())
}
