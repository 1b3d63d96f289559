package market

import "time"

// OHLC carries the day's open/high/low/close as delivered on a tick.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick is a single live price update for one instrument. Ticks are
// ephemeral: a later tick for the same token supersedes earlier ones.
type Tick struct {
	InstrumentToken int64     `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	Change          float64   `json:"change"`
	OHLC            OHLC      `json:"ohlc"`
	VolumeTraded    int64     `json:"volume_traded"`
	Timestamp       time.Time `json:"timestamp"`
}

// IndexByToken builds a token -> tick lookup from a batch. When the batch
// contains several ticks for the same token, the last one wins, matching
// the per-cycle last-write-wins semantics of the push channel.
func IndexByToken(ticks []Tick) map[int64]Tick {
	idx := make(map[int64]Tick, len(ticks))
	for _, t := range ticks {
		idx[t.InstrumentToken] = t
	}
	return idx
}
