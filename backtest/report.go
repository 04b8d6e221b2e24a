package backtest

import (
	"fmt"
	"io"
	"time"

	"propengine/broker"
	"propengine/strategy"
)

// Report summarizes one replay and scores it against the criteria a
// run must clear before the configuration goes anywhere near live.
type Report struct {
	Strategy   string
	Instrument string
	Start      time.Time
	End        time.Time
	Bars       int

	StartBalance float64
	EndBalance   float64

	Trades  int // full closes; partial fills are folded into their trade
	Wins    int
	Losses  int
	WinRate float64

	NetPL        float64
	ReturnPct    float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	Expectancy   float64

	MaxDDPct        float64
	MaxDDLimit      float64
	MaxConsecLosses int
	FinalPosture    string

	Diag strategy.Diag
}

// tally derives the trade statistics from the simulated deal history.
func (r *Report) tally(deals []broker.ClosedTrade) {
	consec := 0
	for _, d := range deals {
		r.NetPL += d.PnL
		if d.PnL >= 0 {
			r.GrossProfit += d.PnL
		} else {
			r.GrossLoss += -d.PnL
		}

		if d.Reason == "PARTIAL" {
			continue
		}
		r.Trades++
		switch {
		case d.PnL > 0:
			r.Wins++
			consec = 0
		case d.PnL < 0:
			r.Losses++
			consec++
			if consec > r.MaxConsecLosses {
				r.MaxConsecLosses = consec
			}
		}
	}

	if r.Trades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.Trades) * 100
		r.Expectancy = r.NetPL / float64(r.Trades)
	}
	if r.GrossLoss > 0 {
		r.ProfitFactor = r.GrossProfit / r.GrossLoss
	}
	if r.StartBalance > 0 {
		r.ReturnPct = (r.EndBalance - r.StartBalance) / r.StartBalance * 100
	}
}

// Check is one go/no-go criterion.
type Check struct {
	Name   string
	Pass   bool
	Detail string
}

// Evaluate scores the run. All checks must pass for a go.
func (r *Report) Evaluate() []Check {
	ddLimit := r.MaxDDLimit
	if ddLimit <= 0 {
		ddLimit = 8.0
	}
	return []Check{
		{
			Name:   "sample size",
			Pass:   r.Trades >= 30,
			Detail: fmt.Sprintf("%d trades (need 30)", r.Trades),
		},
		{
			Name:   "profit factor",
			Pass:   r.ProfitFactor >= 1.3,
			Detail: fmt.Sprintf("%.2f (need 1.30)", r.ProfitFactor),
		},
		{
			Name:   "win rate",
			Pass:   r.WinRate >= 45,
			Detail: fmt.Sprintf("%.1f%% (need 45%%)", r.WinRate),
		},
		{
			Name:   "expectancy",
			Pass:   r.Expectancy > 0,
			Detail: fmt.Sprintf("%+.2f per trade", r.Expectancy),
		},
		{
			Name:   "max drawdown",
			Pass:   r.MaxDDPct < ddLimit,
			Detail: fmt.Sprintf("%.2f%% (limit %.2f%%)", r.MaxDDPct, ddLimit),
		},
		{
			Name:   "survived",
			Pass:   r.FinalPosture != "KILL_SWITCH",
			Detail: "final posture " + r.FinalPosture,
		},
	}
}

func (r *Report) Go() bool {
	for _, c := range r.Evaluate() {
		if !c.Pass {
			return false
		}
	}
	return true
}

func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Instrument:    %s\n", r.Instrument)
	fmt.Fprintf(w, "Period:        %s .. %s (%d bars)\n",
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Bars)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate)
	fmt.Fprintf(w, "Expectancy:    %+.2f\n", r.Expectancy)
	fmt.Fprintf(w, "Max Streak:    %d losses\n", r.MaxConsecLosses)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %+.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %+.2f%%\n", r.ReturnPct)
	if r.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.ProfitFactor)
	}
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	fmt.Fprintf(w, "Final Posture: %s\n", r.FinalPosture)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Go / No-Go")
	fmt.Fprintln(w, "--------------------------------------------------")
	for _, c := range r.Evaluate() {
		mark := "PASS"
		if !c.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%-14s %s  %s\n", c.Name+":", mark, c.Detail)
	}
	verdict := "NO-GO"
	if r.Go() {
		verdict = "GO"
	}
	fmt.Fprintf(w, "\nVerdict:       %s\n", verdict)

	if r.Diag.Evaluations > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Signal Diagnostics")
		fmt.Fprintln(w, "--------------------------------------------------")
		fmt.Fprintf(w, "Evaluations:   %d\n", r.Diag.Evaluations)
		fmt.Fprintf(w, "No Trend:      %d\n", r.Diag.NoTrend)
		fmt.Fprintf(w, "No Pullback:   %d\n", r.Diag.NoPullback)
		fmt.Fprintf(w, "RSI Filtered:  %d\n", r.Diag.RSIOutOfZone)
		fmt.Fprintf(w, "Weak Candle:   %d\n", r.Diag.WeakCandle)
		fmt.Fprintf(w, "Bad Stop:      %d\n", r.Diag.BadStop)
		fmt.Fprintf(w, "Missing Data:  %d\n", r.Diag.MissingData)
	}
}
