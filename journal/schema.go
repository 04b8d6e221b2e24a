package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	record_id TEXT PRIMARY KEY,
	ticket INTEGER NOT NULL,
	instrument TEXT NOT NULL,
	strategy TEXT NOT NULL,
	direction TEXT NOT NULL,
	lots REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	stop_pips REAL NOT NULL,
	risk_pct REAL NOT NULL,
	spread_pips REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	posture TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	drawdown_pct REAL NOT NULL,
	daily_pnl REAL NOT NULL,
	posture TEXT NOT NULL,
	consec_losses INTEGER NOT NULL,
	trades_today INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
