package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write([]string{
		"record_id", "ticket", "instrument", "strategy", "direction",
		"lots", "entry_price", "exit_price", "stop_pips", "risk_pct",
		"spread_pips", "open_time", "close_time", "realized_pl",
		"posture", "reason",
	}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{
		"time", "balance", "equity", "drawdown_pct", "daily_pnl",
		"posture", "consec_losses", "trades_today",
	}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.RecordID,
		strconv.FormatInt(t.Ticket, 10),
		t.Instrument,
		t.Strategy,
		t.Direction,
		f(t.Lots),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.StopPips),
		f(t.RiskPct),
		f(t.SpreadPips),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		t.Posture,
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.DrawdownPct),
		f(e.DailyPnL),
		e.Posture,
		strconv.Itoa(e.ConsecLosses),
		strconv.Itoa(e.TradesToday),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
