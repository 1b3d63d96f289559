package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/anny-whatever/vcpTrader-sub000/internal/api"
	"github.com/anny-whatever/vcpTrader-sub000/internal/cfg"
	"github.com/anny-whatever/vcpTrader-sub000/internal/chart"
	"github.com/anny-whatever/vcpTrader-sub000/internal/engine"
	"github.com/anny-whatever/vcpTrader-sub000/internal/market"
	"github.com/anny-whatever/vcpTrader-sub000/internal/metrics"
	"github.com/anny-whatever/vcpTrader-sub000/internal/risk"
	"github.com/anny-whatever/vcpTrader-sub000/internal/storage"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	client := api.New(c.APIBaseURL, c.RESTTimeout)
	agg := risk.NewAggregator(client, c.RiskScoreTTL)

	eng := engine.New(engine.Config{
		Source:      client,
		Collections: client,
		Aggregator:  agg,
		Store:       store,
		Metrics:     m,
		Series:      initializeSeries(ctx, client, c),
		SMAWindow:   c.SMAWindow,
	})
	defer eng.Close()

	startMetricsServer(ctx, c)

	ticks := make(chan []market.Tick, 64)
	refresh := make(chan struct{}, 1)
	errs := make(chan error, 32)

	var wg sync.WaitGroup

	feed := market.NewFeed(c.WsURL)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Stream(ctx, ticks, refresh, errs, c.Ping); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("push stream ended")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				log.Error().Err(err).Msg("background error")
				m.FeedReconnects.Inc()
			}
		}
	}()

	// Populate the REST-backed collections before the first tick.
	eng.Refresh(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx, ticks, refresh)
	}()

	waitForShutdown(ctx, cancel, &wg)
}

// initializeStorage opens persistence when DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// initializeSeries loads candle history for the configured chart
// instrument. Without one the chart view stays disabled.
func initializeSeries(ctx context.Context, client *api.Client, c cfg.Settings) *chart.Series {
	if c.ChartToken == 0 {
		return nil
	}
	candles, err := client.FetchCandles(ctx, c.ChartToken, c.ChartSymbol, c.ChartInterval)
	if err != nil {
		log.Warn().Err(err).Str("symbol", c.ChartSymbol).Msg("candle history load failed, chart starts empty")
		candles = nil
	}
	return chart.NewSeries(c.ChartToken, c.ChartSymbol, c.ChartInterval, candles)
}

// startMetricsServer serves /metrics and /health.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until a signal arrives, then drains goroutines
// with a timeout.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
