// Package chart maintains the OHLCV candle series for the actively
// displayed instrument, extending it incrementally from ticks instead of
// refetching history.
package chart

import (
	"sort"
	"sync"
	"time"

	"github.com/anny-whatever/vcpTrader-sub000/internal/market"
)

// Candle is one OHLCV bar, keyed by its time bucket.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Point is one sample of a chart overlay series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Normalize dedups a bulk-loaded candle slice by time bucket, with the
// most recent record for a bucket winning, and returns the result sorted
// ascending by time. History endpoints occasionally return the forming
// bar twice; the later copy is the fresher one.
func Normalize(raw []Candle) []Candle {
	byBucket := make(map[int64]Candle, len(raw))
	for _, c := range raw {
		byBucket[c.Time.UnixNano()] = c
	}
	out := make([]Candle, 0, len(byBucket))
	for _, c := range byBucket {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Series is the in-memory candle series for one (token, symbol,
// interval) selection. Changing any of the three discards the series; a
// fresh history load is required, there is no resampling between
// resolutions.
type Series struct {
	mu       sync.RWMutex
	token    int64
	symbol   string
	interval string
	candles  []Candle
}

// NewSeries builds a series from a bulk history load, normalizing it
// first.
func NewSeries(token int64, symbol, interval string, raw []Candle) *Series {
	return &Series{
		token:    token,
		symbol:   symbol,
		interval: interval,
		candles:  Normalize(raw),
	}
}

// Reset swaps in a different selection, discarding the old series.
func (s *Series) Reset(token int64, symbol, interval string, raw []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.symbol = symbol
	s.interval = interval
	s.candles = Normalize(raw)
}

// ApplyTick extends the series from a live tick. Only the last (open)
// candle mutates: close tracks the LTP, high/low widen, volume snaps to
// the cumulative traded volume. Earlier candles are never rewritten.
// Ticks for other instruments and ticks against an empty series are
// no-ops. Reports whether the tick was applied.
func (s *Series) ApplyTick(t market.Tick) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.InstrumentToken != s.token || len(s.candles) == 0 {
		return false
	}

	last := &s.candles[len(s.candles)-1]
	last.Close = t.LastPrice
	if t.LastPrice > last.High {
		last.High = t.LastPrice
	}
	if t.LastPrice < last.Low {
		last.Low = t.LastPrice
	}
	last.Volume = float64(t.VolumeTraded)
	return true
}

// Token returns the instrument the series currently tracks.
func (s *Series) Token() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Selection returns the symbol and interval the series currently tracks.
func (s *Series) Selection() (symbol, interval string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbol, s.interval
}

// Candles returns a copy of the current series.
func (s *Series) Candles() []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Candle, len(s.candles))
	copy(cp, s.candles)
	return cp
}

// SMA computes the simple moving average of candle closes over the given
// window, one point per candle from the first fully formed window
// onward. Returns nil when the series is shorter than the window.
func SMA(candles []Candle, window int) []Point {
	if window <= 0 || len(candles) < window {
		return nil
	}
	out := make([]Point, 0, len(candles)-window+1)
	var sum float64
	for i, c := range candles {
		sum += c.Close
		if i >= window {
			sum -= candles[i-window].Close
		}
		if i >= window-1 {
			out = append(out, Point{Time: c.Time, Value: sum / float64(window)})
		}
	}
	return out
}
