package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anny-whatever/vcpTrader-sub000/internal/alert"
	"github.com/anny-whatever/vcpTrader-sub000/internal/market"
	"github.com/anny-whatever/vcpTrader-sub000/internal/metrics"
	"github.com/anny-whatever/vcpTrader-sub000/internal/notify"
	"github.com/anny-whatever/vcpTrader-sub000/internal/portfolio"
	"github.com/anny-whatever/vcpTrader-sub000/internal/risk"
	"github.com/anny-whatever/vcpTrader-sub000/internal/stats"
)

// fakeSource serves canned REST collections with per-endpoint failure
// switches.
type fakeSource struct {
	mu        sync.Mutex
	positions []portfolio.Position
	pool      *risk.Pool
	trades    []stats.ClosedTrade

	failPositions bool
	failPool      bool
	failTrades    bool
}

func (f *fakeSource) FetchPositions(context.Context) ([]portfolio.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPositions {
		return nil, errors.New("positions endpoint down")
	}
	out := make([]portfolio.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeSource) FetchRiskPool(context.Context) (*risk.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPool {
		return nil, errors.New("risk pool endpoint down")
	}
	pool := *f.pool
	return &pool, nil
}

func (f *fakeSource) FetchClosedTrades(context.Context) ([]stats.ClosedTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTrades {
		return nil, errors.New("trade history endpoint down")
	}
	out := make([]stats.ClosedTrade, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

type fakeCollections struct {
	created []alert.PriceAlert
	deleted []string
	failAll bool
}

func (f *fakeCollections) CreateAlert(_ context.Context, a alert.PriceAlert) error {
	if f.failAll {
		return errors.New("server rejected alert")
	}
	f.created = append(f.created, a)
	return nil
}

func (f *fakeCollections) DeleteAlert(_ context.Context, id string) error {
	if f.failAll {
		return errors.New("server rejected delete")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCollections) AddWatchlistEntry(context.Context, portfolio.WatchlistEntry) error {
	if f.failAll {
		return errors.New("server rejected entry")
	}
	return nil
}

func (f *fakeCollections) DeleteWatchlistEntry(context.Context, int64) error {
	if f.failAll {
		return errors.New("server rejected delete")
	}
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type scoreFetcher struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  int
}

func (s *scoreFetcher) FetchRiskScore(_ context.Context, symbol string) (*risk.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if v, ok := s.scores[symbol]; ok {
		overall := v
		return &risk.Score{Symbol: symbol, Overall: &overall, FetchedAt: time.Now()}, nil
	}
	return nil, fmt.Errorf("no score for %s", symbol)
}

func (s *scoreFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

func TestRefresh_ReplacesCollectionsWholesale(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{AvailableRisk: 75000, UsedRisk: 25000},
		trades:    []stats.ClosedTrade{{Stock: "OLD", FinalPnL: 100, ExitTime: time.Now()}},
	}
	eng := New(Config{Source: src})

	eng.Refresh(context.Background())

	snap := eng.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 25000.0, snap.RiskPool.UsedRisk)
	assert.Equal(t, 100.0, snap.TradeStats.TotalPnL)

	// The second refresh replaces, never appends.
	src.mu.Lock()
	src.positions = []portfolio.Position{
		{Token: 2, StockName: "TCS", EntryPrice: 3000, CurrentQty: 5},
		{Token: 3, StockName: "INFY", EntryPrice: 1500, CurrentQty: 8},
	}
	src.trades = nil
	src.mu.Unlock()

	eng.Refresh(context.Background())

	snap = eng.Snapshot()
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "TCS", snap.Positions[0].StockName)
	assert.Zero(t, snap.TradeStats.TotalPnL)
}

func TestRefresh_SeedsPricesFromLiveStore(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{},
	}
	live := market.NewLiveStore()
	live.Upsert(1, 110)

	eng := New(Config{Source: src, Live: live})
	eng.Refresh(context.Background())

	snap := eng.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 110.0, snap.Positions[0].LastPrice)
	assert.Equal(t, 100.0, snap.Positions[0].UnrealizedPnL)
	assert.Equal(t, 1100.0, snap.Positions[0].CurrentValue)
}

func TestRefresh_FailureIsolation(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{AvailableRisk: 50000},
		trades:    []stats.ClosedTrade{{Stock: "A", FinalPnL: 200, ExitTime: time.Now()}},
	}
	notifier := &recordingNotifier{}
	met := newTestMetrics()
	eng := New(Config{Source: src, Notifier: notifier, Metrics: met})

	eng.Refresh(context.Background())
	require.Len(t, eng.Snapshot().Positions, 1)

	// One endpoint breaks; the others keep refreshing and the broken
	// collection keeps its previous copy.
	src.mu.Lock()
	src.failPositions = true
	src.pool = &risk.Pool{AvailableRisk: 60000}
	src.mu.Unlock()

	eng.Refresh(context.Background())

	snap := eng.Snapshot()
	assert.Len(t, snap.Positions, 1, "failed fetch keeps the previous positions")
	assert.Equal(t, 60000.0, snap.RiskPool.AvailableRisk, "other collections still refresh")
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(met.RESTErrors))
}

func TestOnTicks_ReconcilesAndReweightsWithoutFetching(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{},
	}
	fetcher := &scoreFetcher{scores: map[string]float64{"RELIANCE": 4}}
	agg := risk.NewAggregator(fetcher, time.Hour)
	eng := New(Config{Source: src, Aggregator: agg})

	eng.Refresh(context.Background())
	fetchesAfterRefresh := fetcher.callCount()
	require.Equal(t, 1, fetchesAfterRefresh)

	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 110}})

	snap := eng.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 100.0, snap.Positions[0].UnrealizedPnL)
	require.NotNil(t, snap.WeightedRiskScore)
	assert.Equal(t, 4.0, *snap.WeightedRiskScore)
	assert.Equal(t, fetchesAfterRefresh, fetcher.callCount(), "the tick path must not fetch scores")
}

func TestOnTicks_AfterCloseIsNoOp(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{},
	}
	eng := New(Config{Source: src})
	eng.Refresh(context.Background())

	eng.Close()
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 500}})
	eng.Refresh(context.Background())

	snap := eng.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Zero(t, snap.Positions[0].UnrealizedPnL, "no frame after Close may mutate state")
}

func TestAlerts_NotifyOnRisingEdgeOnly(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	met := newTestMetrics()
	eng := New(Config{Source: &fakeSource{pool: &risk.Pool{}}, Notifier: notifier, Metrics: met})

	_, err := eng.AddAlert(context.Background(), alert.PriceAlert{
		ID: "a1", InstrumentToken: 1, Symbol: "RELIANCE", Type: alert.TypeTarget, Price: 100,
	})
	require.NoError(t, err)

	// Below threshold: nothing fires.
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 95}})
	assert.Equal(t, 0, notifier.count())

	// Crossing fires once; holding above does not re-fire.
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 101}})
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 102}})
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(met.AlertsTriggered))

	// Dropping back and re-crossing fires again.
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 95}})
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 103}})
	assert.Equal(t, 2, notifier.count())
}

func TestAddAlert_FillsIDAndSurfacesServerRejection(t *testing.T) {
	t.Parallel()
	coll := &fakeCollections{}
	eng := New(Config{Source: &fakeSource{pool: &risk.Pool{}}, Collections: coll})

	created, err := eng.AddAlert(context.Background(), alert.PriceAlert{Symbol: "TCS", Type: alert.TypeStopLoss, Price: 3400})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	require.Len(t, coll.created, 1)

	coll.failAll = true
	_, err = eng.AddAlert(context.Background(), alert.PriceAlert{Symbol: "INFY", Type: alert.TypeTarget, Price: 1600})
	assert.Error(t, err)
	assert.Len(t, eng.Snapshot().Alerts, 1, "a rejected alert is not kept locally")
}

func TestRemoveAlert_ClearsFiredState(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	eng := New(Config{Source: &fakeSource{pool: &risk.Pool{}}, Notifier: notifier})

	a, err := eng.AddAlert(context.Background(), alert.PriceAlert{
		ID: "a1", InstrumentToken: 1, Symbol: "RELIANCE", Type: alert.TypeTarget, Price: 100,
	})
	require.NoError(t, err)

	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 101}})
	require.Equal(t, 1, notifier.count())

	require.NoError(t, eng.RemoveAlert(context.Background(), a.ID))
	assert.Empty(t, eng.Snapshot().Alerts)

	// Re-adding the same ID starts from a clean edge state.
	_, err = eng.AddAlert(context.Background(), a)
	require.NoError(t, err)
	eng.OnTicks([]market.Tick{{InstrumentToken: 1, LastPrice: 102}})
	assert.Equal(t, 2, notifier.count())
}

func TestSnapshot_AlertDifferentials(t *testing.T) {
	t.Parallel()
	live := market.NewLiveStore()
	live.Upsert(1, 95)
	eng := New(Config{Source: &fakeSource{pool: &risk.Pool{}}, Live: live})

	_, err := eng.AddAlert(context.Background(), alert.PriceAlert{
		ID: "known", InstrumentToken: 1, Symbol: "RELIANCE", Type: alert.TypeTarget, Price: 100,
	})
	require.NoError(t, err)
	_, err = eng.AddAlert(context.Background(), alert.PriceAlert{
		ID: "unknown", InstrumentToken: 99, Symbol: "NEWLISTING", Type: alert.TypeTarget, Price: 50,
	})
	require.NoError(t, err)

	snap := eng.Snapshot()
	require.Len(t, snap.Alerts, 2)
	require.NotNil(t, snap.Alerts[0].Differential)
	assert.InDelta(t, -5.0, *snap.Alerts[0].Differential, 1e-9)
	assert.Nil(t, snap.Alerts[1].Differential, "no known price means no differential")
}

func TestSnapshot_Scaled(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{AvailableRisk: 1000, UsedRisk: 500},
		trades: []stats.ClosedTrade{
			{Stock: "A", EntryPrice: 100, ExitPrice: 110, FinalPnL: 100, HighestQty: 10, ExitTime: time.Unix(100, 0)},
		},
	}
	live := market.NewLiveStore()
	live.Upsert(1, 110)
	eng := New(Config{Source: src, Live: live})
	eng.Refresh(context.Background())

	sc := portfolio.NewDisplayScaler(portfolio.RoleObserver, 10)
	snap := eng.Snapshot().Scaled(sc)

	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 1000.0, snap.Positions[0].UnrealizedPnL)
	assert.Equal(t, 11000.0, snap.Positions[0].CurrentValue)
	assert.Equal(t, 110.0, snap.Positions[0].LastPrice, "prices never scale")
	assert.Equal(t, 10000.0, snap.RiskPool.AvailableRisk)
	assert.Equal(t, 1000.0, snap.TradeStats.TotalPnL)
	require.Len(t, snap.CumulativePnL, 1)
	assert.Equal(t, 1000.0, snap.CumulativePnL[0].Value)

	// The unscaled snapshot is untouched.
	raw := eng.Snapshot()
	assert.Equal(t, 100.0, raw.Positions[0].UnrealizedPnL)
}

func TestRun_ConsumesChannelsUntilCancelled(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		positions: []portfolio.Position{{Token: 1, StockName: "RELIANCE", EntryPrice: 100, CurrentQty: 10}},
		pool:      &risk.Pool{},
	}
	eng := New(Config{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan []market.Tick)
	refresh := make(chan struct{})

	done := make(chan struct{})
	go func() {
		eng.Run(ctx, ticks, refresh)
		close(done)
	}()

	refresh <- struct{}{}
	ticks <- []market.Tick{{InstrumentToken: 1, LastPrice: 120}}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	snap := eng.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 200.0, snap.Positions[0].UnrealizedPnL)
}
