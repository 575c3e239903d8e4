// Package venue defines the market-data and order-execution contract the
// trading core depends on, plus helpers shared by its implementations.
package venue

import (
	"context"
	"errors"
	"time"

	"github.com/razieloren/hype-train/internal/market"
)

// Commission is the flat fee ratio assumed for simulated fills.
const Commission = 0.001

// BalanceQuery narrows a balance lookup. Override, when set, takes precedence
// over a live query for venues that support it (used to reconcile the wallet
// right after a trade). Asset, when set, queries that asset instead of the
// session quote asset.
type BalanceQuery struct {
	Override *float64
	Asset    string
}

// Venue supplies ticks and fills orders for one trading session.
type Venue interface {
	// ListTickers returns one tick per tradable asset.
	ListTickers(ctx context.Context) ([]market.Tick, error)
	// Balance reports the free balance matching the query.
	Balance(ctx context.Context, query BalanceQuery) (float64, error)
	// Buy places a market buy. With simulate set the venue returns a
	// deterministic synthetic fill at the expected price without committing
	// capital.
	Buy(ctx context.Context, req market.ConversionRequest, simulate bool) (market.Order, error)
	// Sell places a market sell, with the same simulate semantics as Buy.
	Sell(ctx context.Context, req market.ConversionRequest, simulate bool) (market.Order, error)
	// QuoteAsset names the session quote asset (usually BTC).
	QuoteAsset() string
	Close() error
}

// Error wraps a venue failure and classifies whether retrying makes sense.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "venue: " + e.Op
	}
	return "venue: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a venue failure worth retrying next cycle.
func IsTransient(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Transient
}

// SimulatedMarketOrder builds a synthetic single-fill order at the expected
// price. Buy commissions accrue in the received asset, sell commissions in the
// received quote.
func SimulatedMarketOrder(req market.ConversionRequest, commission float64) market.Order {
	now := time.Now().UTC()
	fee := req.Lots * commission
	if req.Side == market.Sell {
		fee = req.ExpectedPrice * commission
	}
	return market.Order{
		Asset:         req.Asset,
		Quote:         req.Quote,
		Side:          req.Side,
		OrderID:       0,
		ClientOrderID: "0",
		WorkTime:      now,
		TransactTime:  now,
		Fills:         []market.Fill{{TradeID: 0, Price: req.ExpectedPrice, Quantity: req.Lots, Commission: fee}},
	}
}
