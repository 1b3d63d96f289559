// Package engine orchestrates the reconciliation loop: it merges the
// live tick stream into the position, watchlist, chart and alert views,
// and replaces the REST-backed collections wholesale on each full
// refresh signal.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/anny-whatever/vcpTrader-sub000/internal/alert"
	"github.com/anny-whatever/vcpTrader-sub000/internal/chart"
	"github.com/anny-whatever/vcpTrader-sub000/internal/market"
	"github.com/anny-whatever/vcpTrader-sub000/internal/metrics"
	"github.com/anny-whatever/vcpTrader-sub000/internal/notify"
	"github.com/anny-whatever/vcpTrader-sub000/internal/portfolio"
	"github.com/anny-whatever/vcpTrader-sub000/internal/risk"
	"github.com/anny-whatever/vcpTrader-sub000/internal/stats"
	"github.com/anny-whatever/vcpTrader-sub000/internal/storage"
)

// DataSource provides the REST-backed collections replaced on each full
// refresh.
type DataSource interface {
	FetchPositions(ctx context.Context) ([]portfolio.Position, error)
	FetchRiskPool(ctx context.Context) (*risk.Pool, error)
	FetchClosedTrades(ctx context.Context) ([]stats.ClosedTrade, error)
}

// CollectionAPI manages the user-owned collections on the data server.
type CollectionAPI interface {
	CreateAlert(ctx context.Context, a alert.PriceAlert) error
	DeleteAlert(ctx context.Context, id string) error
	AddWatchlistEntry(ctx context.Context, e portfolio.WatchlistEntry) error
	DeleteWatchlistEntry(ctx context.Context, token int64) error
}

// Config wires an Engine. Source is required; everything else has a
// working default or is optional.
type Config struct {
	Source      DataSource
	Collections CollectionAPI
	Aggregator  *risk.Aggregator
	Store       *storage.Store
	Live        *market.LiveStore
	Metrics     *metrics.Metrics
	Notifier    notify.Notifier
	Series      *chart.Series
	SMAWindow   int
}

// Engine owns the reconciled dashboard state.
type Engine struct {
	mu sync.RWMutex

	src       DataSource
	coll      CollectionAPI
	agg       *risk.Aggregator
	store     *storage.Store
	live      *market.LiveStore
	met       *metrics.Metrics
	notifier  notify.Notifier
	series    *chart.Series
	smaWindow int

	positions []portfolio.Position
	watchlist []portfolio.WatchlistEntry
	pool      *risk.Pool
	trades    []stats.ClosedTrade
	alerts    []alert.PriceAlert
	weighted  *float64
	fired     map[string]bool

	closed bool
}

// New creates an engine. When a Store is configured, persisted alerts,
// watchlist entries and risk scores are loaded immediately.
func New(c Config) *Engine {
	if c.Live == nil {
		c.Live = market.NewLiveStore()
	}
	if c.Notifier == nil {
		c.Notifier = notify.LogNotifier{}
	}

	e := &Engine{
		src:       c.Source,
		coll:      c.Collections,
		agg:       c.Aggregator,
		store:     c.Store,
		live:      c.Live,
		met:       c.Metrics,
		notifier:  c.Notifier,
		series:    c.Series,
		smaWindow: c.SMAWindow,
		fired:     make(map[string]bool),
	}

	if c.Aggregator != nil && c.Metrics != nil {
		c.Aggregator.OnFetchFailure = func(string, error) {
			c.Metrics.RiskFetchFailures.Inc()
		}
	}

	if e.store != nil {
		e.loadPersisted()
	}
	return e
}

func (e *Engine) loadPersisted() {
	if alerts, err := e.store.Alerts(); err != nil {
		log.Warn().Err(err).Msg("loading persisted alerts failed")
	} else {
		e.alerts = alerts
	}
	if entries, err := e.store.WatchlistEntries(); err != nil {
		log.Warn().Err(err).Msg("loading persisted watchlist failed")
	} else {
		e.watchlist = entries
	}
	if e.agg != nil {
		if scores, err := e.store.Scores(); err != nil {
			log.Warn().Err(err).Msg("loading persisted risk scores failed")
		} else {
			e.agg.Warm(scores)
		}
	}
}

// Run consumes the feed channels until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, ticks <-chan []market.Tick, refresh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-ticks:
			e.OnTicks(batch)
		case <-refresh:
			e.Refresh(ctx)
		}
	}
}

// Close tears the engine down. No frame received afterwards mutates
// state.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// OnTicks runs one synchronous reconciliation pass for a tick batch.
func (e *Engine) OnTicks(ticks []market.Tick) {
	if len(ticks) == 0 {
		return
	}
	start := time.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	e.live.Apply(ticks)
	e.positions = portfolio.Reconcile(e.positions, ticks)
	e.watchlist = portfolio.MergeWatchlist(e.watchlist, ticks)
	if e.agg != nil {
		// Tick-driven value change re-weights against the cache; no
		// score fetch happens on the tick path.
		e.weighted = e.agg.WeightedFromCache(e.positions)
	}
	alerts := make([]alert.PriceAlert, len(e.alerts))
	copy(alerts, e.alerts)
	e.mu.Unlock()

	if e.series != nil {
		for _, t := range ticks {
			e.series.ApplyTick(t)
		}
	}

	e.evaluateAlerts(alerts)
	e.observePass(start, len(ticks))
}

// evaluateAlerts notifies on the rising edge of each alert condition so
// a held threshold does not re-notify on every tick.
func (e *Engine) evaluateAlerts(alerts []alert.PriceAlert) {
	for _, a := range alerts {
		hit := alert.Triggered(a, e.live)

		e.mu.Lock()
		wasFired := e.fired[a.ID]
		e.fired[a.ID] = hit
		e.mu.Unlock()

		if hit && !wasFired {
			notify.Notifyf(e.notifier, notify.LevelWarn, "%s alert hit for %s at %.2f", a.Type, a.Symbol, a.Price)
			if e.met != nil {
				e.met.AlertsTriggered.Inc()
			}
		}
	}
}

func (e *Engine) observePass(start time.Time, tickCount int) {
	if e.met == nil {
		return
	}
	e.met.TickBatches.Inc()
	e.met.TicksReceived.Add(float64(tickCount))
	e.met.ReconcilePasses.Inc()
	e.met.ReconcileDuration.Observe(time.Since(start).Seconds())
	e.met.KnownInstruments.Set(float64(e.live.Len()))

	e.mu.RLock()
	defer e.mu.RUnlock()
	e.met.ActivePositions.Set(float64(len(e.positions)))
	var pnl float64
	for _, p := range e.positions {
		pnl += p.UnrealizedPnL
	}
	e.met.UnrealizedPnL.Set(pnl)
	if e.weighted != nil {
		e.met.PortfolioRiskScore.Set(*e.weighted)
	} else {
		e.met.PortfolioRiskScore.Set(-1)
	}
}

// Refresh replaces the REST-backed collections wholesale. Each fetch is
// isolated: a failure surfaces a soft notification and leaves the
// previous copy of that collection in place.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return
	}
	if e.met != nil {
		e.met.FullRefreshes.Inc()
	}

	if positions, err := e.src.FetchPositions(ctx); err != nil {
		e.softFail("refreshing positions failed: %v", err)
	} else {
		// Fresh REST copies arrive without a live price; seed from the
		// last-known store before recomputing derived fields.
		for i := range positions {
			if p, ok := e.live.Get(positions[i].Token); ok {
				positions[i].LastPrice = p
			}
		}
		positions = portfolio.Reconcile(positions, nil)

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		e.positions = positions
		e.mu.Unlock()
	}

	if pool, err := e.src.FetchRiskPool(ctx); err != nil {
		e.softFail("refreshing risk pool failed: %v", err)
	} else {
		e.mu.Lock()
		e.pool = pool
		e.mu.Unlock()
	}

	if trades, err := e.src.FetchClosedTrades(ctx); err != nil {
		e.softFail("refreshing trade history failed: %v", err)
	} else {
		e.mu.Lock()
		e.trades = trades
		e.mu.Unlock()
	}

	e.refreshScores(ctx)
}

func (e *Engine) refreshScores(ctx context.Context) {
	if e.agg == nil {
		return
	}

	e.mu.RLock()
	symbols := make([]string, 0, len(e.positions))
	for _, p := range e.positions {
		symbols = append(symbols, p.StockName)
	}
	e.mu.RUnlock()

	scores := e.agg.FetchScores(ctx, symbols)
	if e.store != nil {
		for _, sc := range scores {
			if sc == nil {
				continue
			}
			if err := e.store.SaveScore(*sc); err != nil {
				log.Warn().Err(err).Str("symbol", sc.Symbol).Msg("persisting risk score failed")
			}
		}
	}

	e.mu.Lock()
	if !e.closed {
		e.weighted = risk.WeightedScore(e.positions, scores)
	}
	e.mu.Unlock()
}

func (e *Engine) softFail(format string, err error) {
	if e.met != nil {
		e.met.RESTErrors.Inc()
	}
	notify.Notifyf(e.notifier, notify.LevelWarn, format, err)
}

// AddAlert registers a price alert with the data server, persists it and
// starts evaluating it. A missing ID is filled in.
func (e *Engine) AddAlert(ctx context.Context, a alert.PriceAlert) (alert.PriceAlert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if e.coll != nil {
		if err := e.coll.CreateAlert(ctx, a); err != nil {
			e.softFail("creating alert failed: %v", err)
			return alert.PriceAlert{}, err
		}
	}
	if e.store != nil {
		if err := e.store.SaveAlert(a); err != nil {
			log.Warn().Err(err).Str("alert", a.ID).Msg("persisting alert failed")
		}
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, a)
	e.mu.Unlock()
	return a, nil
}

// RemoveAlert deletes a price alert everywhere.
func (e *Engine) RemoveAlert(ctx context.Context, id string) error {
	if e.coll != nil {
		if err := e.coll.DeleteAlert(ctx, id); err != nil {
			e.softFail("deleting alert failed: %v", err)
			return err
		}
	}
	if e.store != nil {
		if err := e.store.DeleteAlert(id); err != nil {
			log.Warn().Err(err).Str("alert", id).Msg("removing persisted alert failed")
		}
	}

	e.mu.Lock()
	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	e.alerts = kept
	delete(e.fired, id)
	e.mu.Unlock()
	return nil
}

// AddWatchlistEntry registers a watchlist entry; live fields fill in on
// the next tick for its instrument.
func (e *Engine) AddWatchlistEntry(ctx context.Context, entry portfolio.WatchlistEntry) error {
	if e.coll != nil {
		if err := e.coll.AddWatchlistEntry(ctx, entry); err != nil {
			e.softFail("adding watchlist entry failed: %v", err)
			return err
		}
	}
	if e.store != nil {
		if err := e.store.SaveWatchlistEntry(entry); err != nil {
			log.Warn().Err(err).Int64("token", entry.InstrumentToken).Msg("persisting watchlist entry failed")
		}
	}

	e.mu.Lock()
	e.watchlist = append(e.watchlist, entry)
	e.mu.Unlock()
	return nil
}

// RemoveWatchlistEntry deletes a watchlist entry everywhere.
func (e *Engine) RemoveWatchlistEntry(ctx context.Context, token int64) error {
	if e.coll != nil {
		if err := e.coll.DeleteWatchlistEntry(ctx, token); err != nil {
			e.softFail("deleting watchlist entry failed: %v", err)
			return err
		}
	}
	if e.store != nil {
		if err := e.store.DeleteWatchlistEntry(token); err != nil {
			log.Warn().Err(err).Int64("token", token).Msg("removing persisted watchlist entry failed")
		}
	}

	e.mu.Lock()
	kept := e.watchlist[:0]
	for _, w := range e.watchlist {
		if w.InstrumentToken != token {
			kept = append(kept, w)
		}
	}
	e.watchlist = kept
	e.mu.Unlock()
	return nil
}
