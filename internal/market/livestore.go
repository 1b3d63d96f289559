package market

import "sync"

// LiveStore is the process-wide most-recent-price cache, keyed by
// instrument token. Once a price is known for a token it never regresses
// to unknown: cycles that omit an instrument leave its last value intact.
type LiveStore struct {
	mu     sync.RWMutex
	prices map[int64]float64
}

// NewLiveStore creates an empty live price store.
func NewLiveStore() *LiveStore {
	return &LiveStore{prices: make(map[int64]float64, 64)}
}

// Get returns the last known price for a token, if any.
func (s *LiveStore) Get(token int64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[token]
	return p, ok
}

// Upsert records the latest price for a token.
func (s *LiveStore) Upsert(token int64, price float64) {
	s.mu.Lock()
	s.prices[token] = price
	s.mu.Unlock()
}

// Apply merges a tick batch into the store.
func (s *LiveStore) Apply(ticks []Tick) {
	if len(ticks) == 0 {
		return
	}
	s.mu.Lock()
	for _, t := range ticks {
		s.prices[t.InstrumentToken] = t.LastPrice
	}
	s.mu.Unlock()
}

// Snapshot returns an immutable copy of the current prices.
func (s *LiveStore) Snapshot() map[int64]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[int64]float64, len(s.prices))
	for k, v := range s.prices {
		cp[k] = v
	}
	return cp
}

// Len reports how many instruments currently have a known price.
func (s *LiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices)
}
