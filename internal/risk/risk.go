// Package risk fetches and caches per-symbol risk scores and derives the
// value-weighted portfolio risk score from the reconciled position set.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anny-whatever/vcpTrader-sub000/internal/portfolio"
)

// Pool is the read-only available/used risk budget snapshot. Conservation
// of the sum is an invariant of the external system, not enforced here.
type Pool struct {
	AvailableRisk float64 `json:"available_risk"`
	UsedRisk      float64 `json:"used_risk"`
}

// Score is a cached per-symbol risk score. Overall is nil for an
// unscored symbol; nil means "unscored", never zero.
type Score struct {
	Symbol     string             `json:"symbol"`
	Overall    *float64           `json:"overall_risk_score"`
	Components map[string]float64 `json:"components,omitempty"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// Fetcher retrieves the risk score for a single symbol.
type Fetcher interface {
	FetchRiskScore(ctx context.Context, symbol string) (*Score, error)
}

// Aggregator maintains the per-symbol score cache and computes the
// portfolio-level weighted score.
type Aggregator struct {
	mu      sync.RWMutex
	fetcher Fetcher
	cache   map[string]*Score
	ttl     time.Duration

	// OnFetchFailure is called for every per-symbol fetch that degrades
	// to unscored (optional).
	OnFetchFailure func(symbol string, err error)
}

// NewAggregator creates an aggregator backed by the given fetcher. A ttl
// of 0 disables cache expiry.
func NewAggregator(fetcher Fetcher, ttl time.Duration) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		cache:   make(map[string]*Score, 32),
		ttl:     ttl,
	}
}

// Warm seeds the cache, typically from persisted scores at startup.
func (a *Aggregator) Warm(scores []Score) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range scores {
		sc := scores[i]
		a.cache[sc.Symbol] = &sc
	}
}

// FetchScores resolves a score for every distinct symbol, one request per
// symbol, all in flight concurrently. Fresh cache entries are served
// without a request. An individual failure degrades that symbol to an
// unscored entry and never fails the batch.
func (a *Aggregator) FetchScores(ctx context.Context, symbols []string) map[string]*Score {
	distinct := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		distinct = append(distinct, s)
	}

	out := make(map[string]*Score, len(distinct))
	var stale []string

	a.mu.RLock()
	for _, s := range distinct {
		if sc, ok := a.cache[s]; ok && a.fresh(sc) {
			out[s] = sc
			continue
		}
		stale = append(stale, s)
	}
	a.mu.RUnlock()

	if len(stale) == 0 {
		return out
	}

	// Settle-all join: every request completes, failures degrade to an
	// unscored entry.
	results := make([]*Score, len(stale))
	var wg sync.WaitGroup
	for i, symbol := range stale {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sc, err := a.fetcher.FetchRiskScore(ctx, symbol)
			if err != nil || sc == nil {
				if err != nil {
					log.Warn().Err(err).Str("symbol", symbol).Msg("risk score fetch failed, symbol degraded to unscored")
					if a.OnFetchFailure != nil {
						a.OnFetchFailure(symbol, err)
					}
				}
				results[i] = &Score{Symbol: symbol, FetchedAt: time.Now()}
				return
			}
			sc.Symbol = symbol
			if sc.FetchedAt.IsZero() {
				sc.FetchedAt = time.Now()
			}
			results[i] = sc
		}(i, symbol)
	}
	wg.Wait()

	a.mu.Lock()
	for i, symbol := range stale {
		a.cache[symbol] = results[i]
		out[symbol] = results[i]
	}
	a.mu.Unlock()

	return out
}

// CachedScores returns a snapshot of the current cache.
func (a *Aggregator) CachedScores() map[string]*Score {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cp := make(map[string]*Score, len(a.cache))
	for k, v := range a.cache {
		cp[k] = v
	}
	return cp
}

func (a *Aggregator) fresh(sc *Score) bool {
	if a.ttl <= 0 {
		return true
	}
	return time.Since(sc.FetchedAt) < a.ttl
}

// WeightedScore is the value-weighted portfolio risk score:
// sum(score*currentValue)/sum(currentValue) over positions that have both
// a non-nil score and a positive current value. It returns nil when no
// position qualifies, so an empty or fully unscored book never renders
// as a zero-risk portfolio.
func WeightedScore(positions []portfolio.Position, scores map[string]*Score) *float64 {
	var num, den float64
	for _, p := range positions {
		sc := scores[p.StockName]
		if sc == nil || sc.Overall == nil || p.CurrentValue <= 0 {
			continue
		}
		num += *sc.Overall * p.CurrentValue
		den += p.CurrentValue
	}
	if den == 0 {
		return nil
	}
	w := num / den
	return &w
}

// WeightedFromCache re-weights against the current cache without issuing
// any fetches, for tick-driven value changes.
func (a *Aggregator) WeightedFromCache(positions []portfolio.Position) *float64 {
	return WeightedScore(positions, a.CachedScores())
}
