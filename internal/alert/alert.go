// Package alert computes the live distance between current prices and
// stored alert thresholds.
package alert

import (
	"github.com/anny-whatever/vcpTrader-sub000/internal/market"
)

// Type distinguishes target alerts from stop-loss alerts.
type Type string

const (
	TypeTarget   Type = "target"
	TypeStopLoss Type = "stop_loss"
)

// PriceAlert is a stored alert threshold for one instrument. Immutable
// except through explicit delete.
type PriceAlert struct {
	ID              string  `json:"id"`
	InstrumentToken int64   `json:"instrument_token"`
	Symbol          string  `json:"symbol"`
	Type            Type    `json:"alert_type"`
	Price           float64 `json:"price"`
}

// Differential is the live percent distance between the current price
// and the alert threshold: (current - price) / price * 100. It resolves
// the current price through the last-known-price store and returns nil,
// not an error, while no price is known for the instrument yet.
func Differential(a PriceAlert, prices *market.LiveStore) *float64 {
	current, ok := prices.Get(a.InstrumentToken)
	if !ok || a.Price == 0 {
		return nil
	}
	d := (current - a.Price) / a.Price * 100
	return &d
}

// Triggered reports whether the alert condition is met at the current
// price: a target alert fires at or above its price, a stop-loss alert
// at or below. Unknown prices never trigger.
func Triggered(a PriceAlert, prices *market.LiveStore) bool {
	current, ok := prices.Get(a.InstrumentToken)
	if !ok {
		return false
	}
	switch a.Type {
	case TypeTarget:
		return current >= a.Price
	case TypeStopLoss:
		return current <= a.Price
	default:
		return false
	}
}
