package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(record_id, ticket, instrument, strategy, direction, lots,
		 entry_price, exit_price, stop_pips, risk_pct, spread_pips,
		 open_time, close_time, realized_pl, posture, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RecordID, t.Ticket, t.Instrument, t.Strategy, t.Direction, t.Lots,
		t.EntryPrice, t.ExitPrice, t.StopPips, t.RiskPct, t.SpreadPips,
		t.OpenTime, t.CloseTime, t.RealizedPL, t.Posture, t.Reason,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, drawdown_pct, daily_pnl, posture,
		 consec_losses, trades_today)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.DrawdownPct, e.DailyPnL, e.Posture,
		e.ConsecLosses, e.TradesToday,
	)
	return err
}

// Trades returns all recorded deals ordered by close time.
func (j *SQLiteJournal) Trades() ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT record_id, ticket, instrument, strategy, direction, lots,
		       entry_price, exit_price, stop_pips, risk_pct, spread_pips,
		       open_time, close_time, realized_pl, posture, reason
		FROM trades ORDER BY close_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.RecordID, &t.Ticket, &t.Instrument, &t.Strategy, &t.Direction,
			&t.Lots, &t.EntryPrice, &t.ExitPrice, &t.StopPips, &t.RiskPct,
			&t.SpreadPips, &t.OpenTime, &t.CloseTime, &t.RealizedPL,
			&t.Posture, &t.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
