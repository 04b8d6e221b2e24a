// Package alerts pushes operational notifications to Telegram. Delivery
// is best effort: an unreachable bot must never stall or fail the
// decision loop, so every method swallows errors after logging them.
package alerts

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"propengine/risk"
)

// Notifier is the alert surface the engine talks to.
type Notifier interface {
	Started(instrument, strategy string)
	Stopped(reason string)
	TradeOpened(direction string, lots, entry, stop, target float64)
	TradeClosed(direction string, lots, pnl float64, reason string)
	RuleBreach(code, msg string)
	SafeMode(reason string)
	Heartbeat(s risk.Summary, newsStatus string)
}

// Telegram sends formatted messages to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		log:    log.With().Str("component", "alerts").Logger(),
	}, nil
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn().Err(err).Msg("telegram send failed")
	}
}

func (t *Telegram) Started(instrument, strategy string) {
	t.send(fmt.Sprintf("🟢 engine started\n%s / %s", instrument, strategy))
}

func (t *Telegram) Stopped(reason string) {
	t.send("🔴 engine stopped: " + reason)
}

func (t *Telegram) TradeOpened(direction string, lots, entry, stop, target float64) {
	t.send(fmt.Sprintf("📈 %s %.2f lots @ %.5f\nSL %.5f  TP %.5f",
		direction, lots, entry, stop, target))
}

func (t *Telegram) TradeClosed(direction string, lots, pnl float64, reason string) {
	icon := "✅"
	if pnl < 0 {
		icon = "❌"
	}
	t.send(fmt.Sprintf("%s closed %s %.2f lots: %+.2f (%s)", icon, direction, lots, pnl, reason))
}

func (t *Telegram) RuleBreach(code, msg string) {
	t.send(fmt.Sprintf("⛔ %s\n%s", code, msg))
}

func (t *Telegram) SafeMode(reason string) {
	t.send("⚠️ safe mode: " + reason)
}

func (t *Telegram) Heartbeat(s risk.Summary, newsStatus string) {
	t.send(fmt.Sprintf(
		"💓 %s\nDD %.2f%%  day %+.2f\nstreak %d  trades %d  risk %.2f%%\nnews: %s",
		s.Posture, s.TotalDDPct, s.DailyPnL, s.ConsecLosses, s.TradesToday, s.RiskPct, newsStatus))
}

// Nop drops every alert. Used when Telegram is not configured and in
// backtests.
type Nop struct{}

func (Nop) Started(string, string)                                 {}
func (Nop) Stopped(string)                                         {}
func (Nop) TradeOpened(string, float64, float64, float64, float64) {}
func (Nop) TradeClosed(string, float64, float64, string)           {}
func (Nop) RuleBreach(string, string)                              {}
func (Nop) SafeMode(string)                                        {}
func (Nop) Heartbeat(risk.Summary, string)                         {}
