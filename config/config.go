// Package config loads, defaults and validates the engine
// configuration. Secrets (broker credentials, Telegram token) come from
// the environment, optionally via a .env file, never from the YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"propengine/market"
)

type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Risk     RiskConfig     `yaml:"risk"`
	Strategy StrategyConfig `yaml:"strategy"`
	Session  SessionConfig  `yaml:"session"`
	News     NewsConfig     `yaml:"news"`
	Trade    TradeConfig    `yaml:"trade_management"`
	Telegram TelegramConfig `yaml:"telegram"`
	Journal  JournalConfig  `yaml:"journal"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AccountConfig struct {
	Instrument     string  `yaml:"instrument"`
	InitialBalance float64 `yaml:"initial_balance"`
}

type RiskConfig struct {
	RiskPercent     float64 `yaml:"risk_percent"`
	RiskReduced     float64 `yaml:"risk_reduced"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	MaxTotalDDPct   float64 `yaml:"max_total_dd_pct"`

	TrailingDDEnabled bool    `yaml:"trailing_dd_enabled"`
	TrailingDDPct     float64 `yaml:"trailing_dd_pct"`
	TrailingKill      *bool   `yaml:"trailing_kill,omitempty"`

	MaxConsecLosses int     `yaml:"max_consec_losses"`
	ReduceAfter     int     `yaml:"reduce_after"`
	MaxTradesPerDay int     `yaml:"max_trades_per_day"`
	MaxSpreadPips   float64 `yaml:"max_spread_pips"`

	DDTier1Pct    float64 `yaml:"dd_tier1_pct"`
	DDTier2Pct    float64 `yaml:"dd_tier2_pct"`
	DDTier2Factor float64 `yaml:"dd_tier2_factor"`
}

type StrategyConfig struct {
	Name         string  `yaml:"name"`
	RRRatio      float64 `yaml:"rr_ratio"`
	ADXThreshold float64 `yaml:"adx_threshold"`
	DISeparation float64 `yaml:"di_separation"`

	RSIBuyLow   float64 `yaml:"rsi_buy_low"`
	RSIBuyHigh  float64 `yaml:"rsi_buy_high"`
	RSISellLow  float64 `yaml:"rsi_sell_low"`
	RSISellHigh float64 `yaml:"rsi_sell_high"`

	PullbackBandPct float64 `yaml:"pullback_band_pct"`
	MinBodyRatio    float64 `yaml:"min_body_ratio"`
	MinStopATR      float64 `yaml:"min_stop_atr"`
	MaxStopATR      float64 `yaml:"max_stop_atr"`
	MinStopPips     float64 `yaml:"min_stop_pips"`
	MaxStopPips     float64 `yaml:"max_stop_pips"`

	LondonEntryStart int     `yaml:"london_entry_start"`
	LondonEntryEnd   int     `yaml:"london_entry_end"`
	AsianStartHour   int     `yaml:"asian_start_hour"`
	AsianEndHour     int     `yaml:"asian_end_hour"`
	MinRangePips     float64 `yaml:"min_range_pips"`
	MaxRangePips     float64 `yaml:"max_range_pips"`
	RangeBufferATR   float64 `yaml:"range_buffer_atr"`
	TrendFilter      bool    `yaml:"trend_filter"`
}

type SessionConfig struct {
	Enabled   bool `yaml:"enabled"`
	StartHour int  `yaml:"start_hour"`
	EndHour   int  `yaml:"end_hour"`
}

type NewsConfig struct {
	Enabled           bool     `yaml:"enabled"`
	URL               string   `yaml:"url"`
	Currencies        []string `yaml:"currencies"`
	BlockBeforeMin    int      `yaml:"block_before_min"`
	BlockAfterMin     int      `yaml:"block_after_min"`
	CancelPendingMin  int      `yaml:"cancel_pending_min"`
	ForceBreakevenMin int      `yaml:"force_breakeven_min"`
	RefreshMinutes    int      `yaml:"refresh_minutes"`
}

type TradeConfig struct {
	BreakevenEnabled bool    `yaml:"breakeven_enabled"`
	BreakevenR       float64 `yaml:"breakeven_r"`
	PartialEnabled   bool    `yaml:"partial_enabled"`
	PartialR         float64 `yaml:"partial_r"`
	PartialPct       float64 `yaml:"partial_pct"`
	TrailingEnabled  bool    `yaml:"trailing_enabled"`
	TrailingStartR   float64 `yaml:"trailing_start_r"`
	TrailingATRMult  float64 `yaml:"trailing_atr_mult"`
	Retries          int     `yaml:"retries"`
	RetryDelayMs     int     `yaml:"retry_delay_ms"`
}

type TelegramConfig struct {
	Enabled bool `yaml:"enabled"`
	// Token and ChatID are read from TELEGRAM_BOT_TOKEN and
	// TELEGRAM_CHAT_ID, never persisted in the YAML.
	Token  string `yaml:"-"`
	ChatID int64  `yaml:"-"`
}

type JournalConfig struct {
	Type       string `yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `yaml:"trades_file,omitempty"`
	EquityFile string `yaml:"equity_file,omitempty"`
	DBPath     string `yaml:"db_path,omitempty"`
}

type EngineConfig struct {
	PollSeconds      int `yaml:"poll_seconds"`
	HeartbeatMinutes int `yaml:"heartbeat_minutes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadFromFile reads the YAML config, merges environment secrets,
// applies defaults and validates.
func LoadFromFile(path string) (*Config, error) {
	// Missing .env is fine; environment may already be populated.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.loadEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadEnv() {
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
}

func (c *Config) ApplyDefaults() {
	if c.Account.Instrument == "" {
		c.Account.Instrument = "EURUSD"
	}
	if c.Account.InitialBalance <= 0 {
		c.Account.InitialBalance = 10000
	}

	if c.Risk.RiskPercent <= 0 {
		c.Risk.RiskPercent = 1.0
	}
	if c.Risk.RiskReduced <= 0 {
		c.Risk.RiskReduced = c.Risk.RiskPercent / 2
	}
	if c.Risk.MaxDailyLossPct <= 0 {
		c.Risk.MaxDailyLossPct = 4.0
	}
	if c.Risk.MaxTotalDDPct <= 0 {
		c.Risk.MaxTotalDDPct = 8.0
	}
	if c.Risk.TrailingKill == nil {
		v := true
		c.Risk.TrailingKill = &v
	}
	if c.Risk.MaxConsecLosses <= 0 {
		c.Risk.MaxConsecLosses = 5
	}
	if c.Risk.ReduceAfter <= 0 {
		c.Risk.ReduceAfter = 3
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		c.Risk.MaxTradesPerDay = 4
	}
	if c.Risk.MaxSpreadPips <= 0 {
		c.Risk.MaxSpreadPips = 2.5
	}

	if c.Strategy.Name == "" {
		c.Strategy.Name = "trend_pullback"
	}

	if c.News.RefreshMinutes <= 0 {
		c.News.RefreshMinutes = 30
	}

	if c.Trade.Retries <= 0 {
		c.Trade.Retries = 3
	}
	if c.Trade.RetryDelayMs <= 0 {
		c.Trade.RetryDelayMs = 500
	}

	if c.Journal.Type == "" {
		c.Journal.Type = "csv"
	}
	if c.Journal.TradesFile == "" {
		c.Journal.TradesFile = "trades.csv"
	}
	if c.Journal.EquityFile == "" {
		c.Journal.EquityFile = "equity.csv"
	}
	if c.Journal.DBPath == "" {
		c.Journal.DBPath = "journal.db"
	}

	if c.Engine.PollSeconds <= 0 {
		c.Engine.PollSeconds = 5
	}
	if c.Engine.HeartbeatMinutes <= 0 {
		c.Engine.HeartbeatMinutes = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if _, ok := market.Instruments[c.Account.Instrument]; !ok {
		return fmt.Errorf("account.instrument %q is not a known instrument", c.Account.Instrument)
	}
	if c.Risk.RiskPercent > 5 {
		return fmt.Errorf("risk.risk_percent %.2f is above the 5%% hard cap", c.Risk.RiskPercent)
	}
	if c.Risk.MaxDailyLossPct >= c.Risk.MaxTotalDDPct {
		return fmt.Errorf("risk.max_daily_loss_pct must be below max_total_dd_pct")
	}
	if c.Session.Enabled {
		if c.Session.StartHour < 0 || c.Session.StartHour > 23 ||
			c.Session.EndHour < 0 || c.Session.EndHour > 23 {
			return fmt.Errorf("session hours must be 0-23")
		}
	}
	if c.Trade.PartialEnabled && (c.Trade.PartialPct <= 0 || c.Trade.PartialPct >= 100) {
		return fmt.Errorf("trade_management.partial_pct must be in (0, 100)")
	}
	switch c.Journal.Type {
	case "csv", "sqlite", "none":
	default:
		return fmt.Errorf("journal.type %q must be csv, sqlite or none", c.Journal.Type)
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram enabled but TELEGRAM_BOT_TOKEN is not set")
	}
	return nil
}

// PollInterval is the live-mode tick cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollSeconds) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Engine.HeartbeatMinutes) * time.Minute
}
