package engine

import (
	"github.com/anny-whatever/vcpTrader-sub000/internal/alert"
	"github.com/anny-whatever/vcpTrader-sub000/internal/chart"
	"github.com/anny-whatever/vcpTrader-sub000/internal/portfolio"
	"github.com/anny-whatever/vcpTrader-sub000/internal/risk"
	"github.com/anny-whatever/vcpTrader-sub000/internal/stats"
)

// AlertView pairs a stored alert with its live percent distance. The
// differential is nil while no price is known for the instrument.
type AlertView struct {
	alert.PriceAlert
	Differential *float64 `json:"differential"`
}

// Snapshot is a consistent copy of the reconciled state for the
// presentation layer. All monetary values are pre-multiplier; Scaled
// applies the display transform.
type Snapshot struct {
	Positions         []portfolio.Position       `json:"positions"`
	Watchlist         []portfolio.WatchlistEntry `json:"watchlist"`
	RiskPool          *risk.Pool                 `json:"risk_pool,omitempty"`
	WeightedRiskScore *float64                   `json:"weighted_risk_score"`
	TradeStats        stats.Summary              `json:"trade_stats"`
	CumulativePnL     []stats.Point              `json:"cumulative_pnl"`
	PercentPnL        []stats.Point              `json:"percent_pnl"`
	Candles           []chart.Candle             `json:"candles,omitempty"`
	SMA               []chart.Point              `json:"sma,omitempty"`
	Alerts            []AlertView                `json:"alerts"`
}

// Snapshot builds a copy of the current state. Derived analytics that
// are pure over their inputs (trade stats, series, differentials) are
// computed here rather than cached.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()

	snap := Snapshot{
		Positions:         make([]portfolio.Position, len(e.positions)),
		Watchlist:         make([]portfolio.WatchlistEntry, len(e.watchlist)),
		WeightedRiskScore: e.weighted,
		TradeStats:        stats.Summarize(e.trades),
		CumulativePnL:     stats.CumulativePnLSeries(e.trades),
		PercentPnL:        stats.PercentPnLSeries(e.trades),
	}
	copy(snap.Positions, e.positions)
	copy(snap.Watchlist, e.watchlist)
	if e.pool != nil {
		pool := *e.pool
		snap.RiskPool = &pool
	}
	alerts := make([]alert.PriceAlert, len(e.alerts))
	copy(alerts, e.alerts)
	e.mu.RUnlock()

	if e.series != nil {
		snap.Candles = e.series.Candles()
		if e.smaWindow > 0 {
			snap.SMA = chart.SMA(snap.Candles, e.smaWindow)
		}
	}

	snap.Alerts = make([]AlertView, len(alerts))
	for i, a := range alerts {
		snap.Alerts[i] = AlertView{
			PriceAlert:   a,
			Differential: alert.Differential(a, e.live),
		}
	}
	return snap
}

// Scaled returns a copy with the role-dependent display multiplier
// applied to every monetary value. Prices and percent figures are left
// alone; only P&L and capital aggregates scale.
func (s Snapshot) Scaled(sc *portfolio.DisplayScaler) Snapshot {
	out := s

	out.Positions = make([]portfolio.Position, len(s.Positions))
	for i, p := range s.Positions {
		p.BookedPnL = sc.Scale(p.BookedPnL)
		p.UnrealizedPnL = sc.Scale(p.UnrealizedPnL)
		p.CurrentValue = sc.Scale(p.CurrentValue)
		p.CapitalUsed = sc.Scale(p.CapitalUsed)
		out.Positions[i] = p
	}

	if s.RiskPool != nil {
		pool := risk.Pool{
			AvailableRisk: sc.Scale(s.RiskPool.AvailableRisk),
			UsedRisk:      sc.Scale(s.RiskPool.UsedRisk),
		}
		out.RiskPool = &pool
	}

	out.TradeStats.TotalPnL = sc.Scale(s.TradeStats.TotalPnL)
	out.TradeStats.MaxDrawdown = sc.Scale(s.TradeStats.MaxDrawdown)
	out.TradeStats.HighestCapitalUsed = sc.Scale(s.TradeStats.HighestCapitalUsed)
	out.TradeStats.AvgWin = sc.Scale(s.TradeStats.AvgWin)
	out.TradeStats.AvgLossAbs = sc.Scale(s.TradeStats.AvgLossAbs)

	out.CumulativePnL = make([]stats.Point, len(s.CumulativePnL))
	for i, p := range s.CumulativePnL {
		p.Value = sc.Scale(p.Value)
		out.CumulativePnL[i] = p
	}

	return out
}
