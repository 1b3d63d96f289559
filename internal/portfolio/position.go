// Package portfolio merges live market prices into the open-position and
// watchlist views and recomputes their derived fields. Entry price,
// quantity and booked P&L are authoritative from the external order
// system and are never recomputed here; only the derived fields
// (last price, P&L, current value) mutate between full refreshes.
package portfolio

// Position is one open position as reconciled against the live feed.
type Position struct {
	Token      int64   `json:"token"`
	StockName  string  `json:"stock_name"`
	EntryPrice float64 `json:"entry_price"`
	CurrentQty int64   `json:"current_qty"`
	StopLoss   float64 `json:"stop_loss"`
	Target     float64 `json:"target"`
	BookedPnL  float64 `json:"booked_pnl"`
	AutoExit   bool    `json:"auto_exit"`

	// Derived fields, owned by the reconciler. Never persisted back to
	// the authoritative source.
	LastPrice     float64 `json:"last_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	CurrentValue  float64 `json:"current_value"`
	CapitalUsed   float64 `json:"capital_used"`
	PnLPercent    float64 `json:"pnl_percent"`
}

// WatchlistEntry is one tracked instrument outside the position book.
type WatchlistEntry struct {
	InstrumentToken int64   `json:"instrument_token"`
	Symbol          string  `json:"symbol"`
	LastPrice       float64 `json:"last_price"`
	Change          float64 `json:"change"`
	PrevClose       float64 `json:"prev_close"`
}
