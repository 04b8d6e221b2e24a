package risk

// Posture gates trading permission. Ordering matters: higher values are
// more restrictive, and within a calendar day the engine only moves
// toward more restrictive postures.
type Posture int

const (
	Normal Posture = iota
	Reduced
	DailyPaused
	WeeklyPaused
	KillSwitch
)

func (p Posture) String() string {
	switch p {
	case Normal:
		return "NORMAL"
	case Reduced:
		return "REDUCED"
	case DailyPaused:
		return "DAILY_PAUSE"
	case WeeklyPaused:
		return "WEEKLY_PAUSE"
	case KillSwitch:
		return "KILL_SWITCH"
	default:
		return "UNKNOWN"
	}
}

// Blocked explains why RuleCheck refused a trade.
type Blocked struct {
	Code string
	Msg  string
}

const (
	CodeKillSwitch  = "KILL_SWITCH"
	CodeDailyPause  = "DAILY_PAUSE"
	CodeWeeklyPause = "WEEKLY_PAUSE"
	CodeMaxTrades   = "MAX_TRADES_DAY"
	CodeSpreadHigh  = "SPREAD_HIGH"
)

func (b *Blocked) String() string {
	return b.Code + ": " + b.Msg
}
