// Package stats aggregates closed-trade history into the dashboard's
// historical performance figures. Every function is pure: the input
// slice is never mutated and the same input always yields the same
// output. All values are pre-multiplier; display scaling happens at the
// presentation boundary.
package stats

import (
	"math"
	"sort"
	"time"
)

// ClosedTrade is one fully closed trade. Immutable once fetched.
type ClosedTrade struct {
	Stock      string    `json:"stock"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	FinalPnL   float64   `json:"final_pnl"`
	HighestQty int64     `json:"highest_qty"`
}

// Point is one sample of a charting time series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// TotalPnL sums final P&L over all trades. Order-independent.
func TotalPnL(trades []ClosedTrade) float64 {
	var sum float64
	for _, t := range trades {
		sum += t.FinalPnL
	}
	return sum
}

// MaxDrawdown walks trades in ascending exit-time order tracking the
// running cumulative P&L and its running peak, and returns the largest
// peak-to-trough decline. The sort is mandatory: drawdown is sensitive
// to trade order.
func MaxDrawdown(trades []ClosedTrade) float64 {
	var cum, peak, dd float64
	for _, t := range sortByExit(trades) {
		cum += t.FinalPnL
		if cum > peak {
			peak = cum
		}
		if d := peak - cum; d > dd {
			dd = d
		}
	}
	return dd
}

// HighestCapitalUsed is the largest entry_price * highest_qty across all
// trades.
func HighestCapitalUsed(trades []ClosedTrade) float64 {
	var high float64
	for _, t := range trades {
		if c := t.EntryPrice * float64(t.HighestQty); c > high {
			high = c
		}
	}
	return high
}

// Accuracy is the fraction of trades with strictly positive final P&L,
// or 0 for an empty history.
func Accuracy(trades []ClosedTrade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.FinalPnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// AvgWin is the mean final P&L over winning trades, 0 when there are
// none.
func AvgWin(trades []ClosedTrade) float64 {
	var sum float64
	n := 0
	for _, t := range trades {
		if t.FinalPnL > 0 {
			sum += t.FinalPnL
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AvgLossAbs is the mean absolute final P&L over losing trades, 0 when
// there are none.
func AvgLossAbs(trades []ClosedTrade) float64 {
	var sum float64
	n := 0
	for _, t := range trades {
		if t.FinalPnL < 0 {
			sum += -t.FinalPnL
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// RiskReward is avgWin / avgLossAbs. With no losing trades the
// denominator is guarded to 1, keeping the ratio defined instead of
// dividing by zero.
func RiskReward(trades []ClosedTrade) float64 {
	denom := AvgLossAbs(trades)
	if denom == 0 {
		denom = 1
	}
	return AvgWin(trades) / denom
}

// ProfitFactor is sum of winning P&L over the absolute sum of losing
// P&L. With zero losing trades it is +Inf, reported as such rather than
// coerced.
func ProfitFactor(trades []ClosedTrade) float64 {
	var wins, losses float64
	for _, t := range trades {
		if t.FinalPnL > 0 {
			wins += t.FinalPnL
		} else if t.FinalPnL < 0 {
			losses += -t.FinalPnL
		}
	}
	if losses == 0 {
		return math.Inf(1)
	}
	return wins / losses
}

// AvgProfitPercent is the mean of (exit-entry)/entry*100 over trades
// with a strictly positive percent move. Zero-entry trades are excluded.
func AvgProfitPercent(trades []ClosedTrade) float64 {
	return avgPercent(trades, func(p float64) bool { return p > 0 })
}

// AvgLossPercent is the mean of (exit-entry)/entry*100 over trades with
// a strictly negative percent move. Zero-entry trades are excluded.
func AvgLossPercent(trades []ClosedTrade) float64 {
	return avgPercent(trades, func(p float64) bool { return p < 0 })
}

func avgPercent(trades []ClosedTrade, keep func(float64) bool) float64 {
	var sum float64
	n := 0
	for _, t := range trades {
		if t.EntryPrice == 0 {
			continue
		}
		pct := (t.ExitPrice - t.EntryPrice) / t.EntryPrice * 100
		if keep(pct) {
			sum += pct
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CumulativePnLSeries is the running cumulative P&L by ascending exit
// time, for the equity-curve chart.
func CumulativePnLSeries(trades []ClosedTrade) []Point {
	sorted := sortByExit(trades)
	out := make([]Point, len(sorted))
	var cum float64
	for i, t := range sorted {
		cum += t.FinalPnL
		out[i] = Point{Time: t.ExitTime, Value: cum}
	}
	return out
}

// PercentPnLSeries is the per-trade percent P&L by ascending exit time.
// Zero-entry trades contribute a 0 sample rather than being dropped, so
// the series stays aligned with the trade count.
func PercentPnLSeries(trades []ClosedTrade) []Point {
	sorted := sortByExit(trades)
	out := make([]Point, len(sorted))
	for i, t := range sorted {
		var pct float64
		if t.EntryPrice != 0 {
			pct = (t.ExitPrice - t.EntryPrice) / t.EntryPrice * 100
		}
		out[i] = Point{Time: t.ExitTime, Value: pct}
	}
	return out
}

// Summary bundles every aggregate for a one-pass snapshot.
type Summary struct {
	TotalTrades        int     `json:"total_trades"`
	TotalPnL           float64 `json:"total_pnl"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	HighestCapitalUsed float64 `json:"highest_capital_used"`
	Accuracy           float64 `json:"accuracy"`
	AvgWin             float64 `json:"avg_win"`
	AvgLossAbs         float64 `json:"avg_loss_abs"`
	RiskReward         float64 `json:"risk_reward"`
	ProfitFactor       float64 `json:"profit_factor"`
	AvgProfitPercent   float64 `json:"avg_profit_percent"`
	AvgLossPercent     float64 `json:"avg_loss_percent"`
}

// Summarize computes the full summary for a trade history.
func Summarize(trades []ClosedTrade) Summary {
	return Summary{
		TotalTrades:        len(trades),
		TotalPnL:           TotalPnL(trades),
		MaxDrawdown:        MaxDrawdown(trades),
		HighestCapitalUsed: HighestCapitalUsed(trades),
		Accuracy:           Accuracy(trades),
		AvgWin:             AvgWin(trades),
		AvgLossAbs:         AvgLossAbs(trades),
		RiskReward:         RiskReward(trades),
		ProfitFactor:       ProfitFactor(trades),
		AvgProfitPercent:   AvgProfitPercent(trades),
		AvgLossPercent:     AvgLossPercent(trades),
	}
}

// sortByExit returns a copy sorted ascending by exit time. Ties keep
// their input order so repeated calls stay deterministic.
func sortByExit(trades []ClosedTrade) []ClosedTrade {
	cp := make([]ClosedTrade, len(trades))
	copy(cp, trades)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].ExitTime.Before(cp[j].ExitTime) })
	return cp
}
