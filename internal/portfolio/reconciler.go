package portfolio

import (
	"github.com/anny-whatever/vcpTrader-sub000/internal/market"
)

// Reconcile merges a tick batch into a position set and recomputes the
// derived fields. Ticks are indexed by instrument token before the merge;
// a position whose token has no tick in the batch keeps its previous last
// price. Reconcile is deterministic and idempotent: applying the same
// batch twice yields bit-identical output. The input slice is not
// mutated.
func Reconcile(positions []Position, ticks []market.Tick) []Position {
	idx := market.IndexByToken(ticks)

	out := make([]Position, len(positions))
	for i, p := range positions {
		if t, ok := idx[p.Token]; ok {
			p.LastPrice = t.LastPrice
		}
		recompute(&p)
		out[i] = p
	}
	return out
}

// recompute refreshes the derived fields from the authoritative ones
// plus the current last price.
func recompute(p *Position) {
	qty := float64(p.CurrentQty)
	p.UnrealizedPnL = (p.LastPrice-p.EntryPrice)*qty + p.BookedPnL
	p.CurrentValue = p.LastPrice*qty + p.BookedPnL
	p.CapitalUsed = p.EntryPrice * qty
	if p.CapitalUsed == 0 {
		p.PnLPercent = 0
	} else {
		p.PnLPercent = p.UnrealizedPnL / p.CapitalUsed * 100
	}
}

// MergeWatchlist applies a tick batch to watchlist entries. Entries
// without a matching tick are returned unchanged. PrevClose is derived
// from the tick's day close when present, otherwise backed out of the
// percent change.
func MergeWatchlist(entries []WatchlistEntry, ticks []market.Tick) []WatchlistEntry {
	idx := market.IndexByToken(ticks)

	out := make([]WatchlistEntry, len(entries))
	for i, e := range entries {
		if t, ok := idx[e.InstrumentToken]; ok {
			e.LastPrice = t.LastPrice
			e.Change = t.Change
			switch {
			case t.OHLC.Close != 0:
				e.PrevClose = t.OHLC.Close
			case t.Change != -100:
				e.PrevClose = t.LastPrice * 100 / (100 + t.Change)
			}
		}
		out[i] = e
	}
	return out
}
