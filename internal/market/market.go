// Package market standardizes payloads shared between venues, trackers, and the wallet.
package market

import (
	"fmt"
	"math"
	"time"
)

// Side enumerates order directions used by venues.
type Side string

const (
	// Buy converts quote asset into the traded asset.
	Buy Side = "BUY"
	// Sell converts the traded asset back into quote asset.
	Sell Side = "SELL"
)

// SizingError reports a requested order size the venue would reject.
type SizingError struct {
	Reason string
}

func (e *SizingError) Error() string { return "sizing: " + e.Reason }

// LotRules captures the venue's lot and price constraints for one symbol.
type LotRules struct {
	MinQty      float64
	MaxQty      float64
	StepQty     float64
	MinNotional float64
}

// AdjustLots floors lots to the step size and validates the venue minimum.
func (r LotRules) AdjustLots(lots float64) (float64, error) {
	adjusted := lots
	if r.StepQty > 0 {
		adjusted = math.Floor(lots/r.StepQty) * r.StepQty
	}
	if adjusted < r.MinQty {
		return 0, &SizingError{Reason: fmt.Sprintf("lot amount too low, requested=%.10f adjusted=%.10f min=%.10f", lots, adjusted, r.MinQty)}
	}
	if r.MaxQty > 0 {
		adjusted = math.Min(r.MaxQty, adjusted)
	}
	return adjusted, nil
}

// Tick is one price observation for an asset against the session quote asset.
type Tick struct {
	// Asset is the traded coin, Quote is what it is priced in (usually BTC).
	Asset string
	Quote string
	// QuoteToAsset is how many asset units one quote unit buys; AssetToQuote
	// is the asset's price in quote.
	QuoteToAsset float64
	AssetToQuote float64
	ServerTime   time.Time
	Rules        LotRules
}

// ConversionRequest describes a market order a venue can fill.
type ConversionRequest struct {
	Asset         string
	Quote         string
	Lots          float64
	Side          Side
	ExpectedPrice float64
}

// LotsToBuy sizes a buy that spends at most maxQuote of the quote asset.
func (t Tick) LotsToBuy(maxQuote float64) (ConversionRequest, error) {
	lots, err := t.Rules.AdjustLots(maxQuote * t.QuoteToAsset)
	if err != nil {
		return ConversionRequest{}, err
	}
	price := lots / t.QuoteToAsset
	if price < t.Rules.MinNotional {
		return ConversionRequest{}, &SizingError{
			Reason: fmt.Sprintf("buy order expected price too low: %.10f%s for %.10f%s", price, t.Quote, lots, t.Asset),
		}
	}
	return ConversionRequest{Asset: t.Asset, Quote: t.Quote, Lots: lots, Side: Buy, ExpectedPrice: t.AssetToQuote}, nil
}

// LotsToSell sizes a sell of at most maxAsset units of the traded asset.
func (t Tick) LotsToSell(maxAsset float64) (ConversionRequest, error) {
	lots, err := t.Rules.AdjustLots(maxAsset)
	if err != nil {
		return ConversionRequest{}, err
	}
	price := lots * t.AssetToQuote
	if price < t.Rules.MinNotional {
		return ConversionRequest{}, &SizingError{
			Reason: fmt.Sprintf("sell order expected price too low: %.10f%s for %.10f%s", price, t.Quote, lots, t.Asset),
		}
	}
	return ConversionRequest{Asset: t.Asset, Quote: t.Quote, Lots: lots, Side: Sell, ExpectedPrice: t.AssetToQuote}, nil
}

// Fill is a single execution the venue reported for an order.
type Fill struct {
	TradeID    int64   `json:"trade_id"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
}

// TotalPrice is quote spent on a buy fill, or quote received on a sell fill.
func (f Fill) TotalPrice() float64 { return f.Price * f.Quantity }

// BuyOutcome nets the commission in the received asset.
func (f Fill) BuyOutcome() float64 { return f.Quantity - f.Commission }

// SellOutcome nets the commission in the received quote.
func (f Fill) SellOutcome() float64 { return f.TotalPrice() - f.Commission }

// PnL is a realized profit expressed both as a ratio and in quote units.
type PnL struct {
	Ratio    float64 `json:"ratio"`
	Absolute float64 `json:"absolute"`
}

// Order aggregates the fills of one market buy or sell.
type Order struct {
	Asset         string    `json:"asset"`
	Quote         string    `json:"quote"`
	Side          Side      `json:"side"`
	OrderID       int64     `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	WorkTime      time.Time `json:"work_time"`
	TransactTime  time.Time `json:"transact_time"`
	Fills         []Fill    `json:"fills"`
}

// Outcome is what the order produced: asset units for buys, quote units for sells.
func (o Order) Outcome() float64 {
	var outcome float64
	for _, fill := range o.Fills {
		if o.Side == Sell {
			outcome += fill.SellOutcome()
		} else {
			outcome += fill.BuyOutcome()
		}
	}
	return outcome
}

// Price is the gross quote amount across all fills.
func (o Order) Price() float64 {
	var price float64
	for _, fill := range o.Fills {
		price += fill.TotalPrice()
	}
	return price
}

// Quantity is the total asset amount across all fills.
func (o Order) Quantity() float64 {
	var quantity float64
	for _, fill := range o.Fills {
		quantity += fill.Quantity
	}
	return quantity
}

// PnL compares this sell order against the buy that opened the position.
func (o Order) PnL(buy Order) (PnL, error) {
	if o.Side != Sell {
		return PnL{}, fmt.Errorf("pnl requires a sell order, got %s", o.Side)
	}
	if buy.Side != Buy {
		return PnL{}, fmt.Errorf("pnl baseline must be a buy order, got %s", buy.Side)
	}
	outcome := o.Outcome()
	paid := buy.Price()
	return PnL{Ratio: outcome / paid, Absolute: outcome - paid}, nil
}

// PriceMismatch is the expected price divided by the average realized fill price.
func (o Order) PriceMismatch(expected float64) float64 {
	if len(o.Fills) == 0 {
		return 0
	}
	var sum float64
	for _, fill := range o.Fills {
		sum += fill.Price
	}
	return expected / (sum / float64(len(o.Fills)))
}

func (o Order) String() string {
	ts := o.TransactTime.Format(time.RFC3339)
	if o.Side == Sell {
		return fmt.Sprintf("[Trade | %s] Sold %.8f%s for %.8f%s", ts, o.Quantity(), o.Asset, o.Outcome(), o.Quote)
	}
	return fmt.Sprintf("[Trade | %s] Bought %.8f%s for %.8f%s", ts, o.Outcome(), o.Asset, o.Price(), o.Quote)
}
