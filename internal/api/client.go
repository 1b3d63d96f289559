// Package api is the REST collaborator layer. The engine only consumes
// the typed shapes returned here; authentication and routing belong to
// the surrounding deployment and are out of scope.
package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/anny-whatever/vcpTrader-sub000/internal/alert"
	"github.com/anny-whatever/vcpTrader-sub000/internal/chart"
	"github.com/anny-whatever/vcpTrader-sub000/internal/portfolio"
	"github.com/anny-whatever/vcpTrader-sub000/internal/risk"
	"github.com/anny-whatever/vcpTrader-sub000/internal/stats"
)

// Client talks to the dashboard data server.
type Client struct {
	base string
	rest *resty.Client
}

// New creates a REST client against the given base URL.
func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &Client{base: base, rest: r}
}

// FetchPositions retrieves the full open-position collection. The caller
// replaces its previous copy wholesale.
func (c *Client) FetchPositions(ctx context.Context) ([]portfolio.Position, error) {
	var positions []portfolio.Position
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&positions).
		Get(c.base + "/api/positions")
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch positions: status %d", resp.StatusCode())
	}
	return positions, nil
}

// FetchRiskPool retrieves the current risk budget snapshot.
func (c *Client) FetchRiskPool(ctx context.Context) (*risk.Pool, error) {
	var pool risk.Pool
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&pool).
		Get(c.base + "/api/risk_pool")
	if err != nil {
		return nil, fmt.Errorf("fetch risk pool: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch risk pool: status %d", resp.StatusCode())
	}
	return &pool, nil
}

// FetchClosedTrades retrieves the closed-trade history.
func (c *Client) FetchClosedTrades(ctx context.Context) ([]stats.ClosedTrade, error) {
	var trades []stats.ClosedTrade
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&trades).
		Get(c.base + "/api/historical_trades")
	if err != nil {
		return nil, fmt.Errorf("fetch closed trades: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch closed trades: status %d", resp.StatusCode())
	}
	return trades, nil
}

// FetchCandles retrieves candle history for one instrument and interval.
func (c *Client) FetchCandles(ctx context.Context, token int64, symbol, interval string) ([]chart.Candle, error) {
	var candles []chart.Candle
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token":    strconv.FormatInt(token, 10),
			"symbol":   symbol,
			"interval": interval,
		}).
		SetResult(&candles).
		Get(c.base + "/api/chart_data")
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch candles: status %d", resp.StatusCode())
	}
	return candles, nil
}

// FetchRiskScore retrieves the risk score for one symbol. A null
// overall_risk_score in the response means the symbol is unscored.
func (c *Client) FetchRiskScore(ctx context.Context, symbol string) (*risk.Score, error) {
	var score risk.Score
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&score).
		Get(c.base + "/api/risk_scores")
	if err != nil {
		return nil, fmt.Errorf("fetch risk score %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch risk score %s: status %d", symbol, resp.StatusCode())
	}
	return &score, nil
}

// CreateAlert registers a price alert with the data server.
func (c *Client) CreateAlert(ctx context.Context, a alert.PriceAlert) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(a).
		Post(c.base + "/api/alerts")
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("create alert: status %d", resp.StatusCode())
	}
	return nil
}

// DeleteAlert removes a price alert.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Delete(c.base + "/api/alerts/" + id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("delete alert: status %d", resp.StatusCode())
	}
	return nil
}

// AddWatchlistEntry registers a watchlist entry with the data server.
func (c *Client) AddWatchlistEntry(ctx context.Context, e portfolio.WatchlistEntry) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(e).
		Post(c.base + "/api/watchlist")
	if err != nil {
		return fmt.Errorf("add watchlist entry: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("add watchlist entry: status %d", resp.StatusCode())
	}
	return nil
}

// DeleteWatchlistEntry removes a watchlist entry.
func (c *Client) DeleteWatchlistEntry(ctx context.Context, token int64) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Delete(c.base + "/api/watchlist/" + strconv.FormatInt(token, 10))
	if err != nil {
		return fmt.Errorf("delete watchlist entry: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("delete watchlist entry: status %d", resp.StatusCode())
	}
	return nil
}
