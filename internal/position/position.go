// Package position owns the lifecycle of one open trade: a market buy, live
// re-quotes against the liquidation policy, and the closing market sell.
package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/risk"
	"github.com/razieloren/hype-train/internal/venue"
)

var (
	// ErrAlreadyOpen signals an open attempt while a position exists.
	ErrAlreadyOpen = errors.New("position already opened")
	// ErrNotOpen signals a close attempt with no open position.
	ErrNotOpen = errors.New("no position opened")
)

// Result is the immutable outcome of a closed trade.
type Result struct {
	Asset   string
	Buy     market.Order
	Sell    market.Order
	Reason  risk.Reason
	HeldFor int
}

// PnL nets the sell outcome against the gross buy cost.
func (r Result) PnL() market.PnL {
	pnl, _ := r.Sell.PnL(r.Buy)
	return pnl
}

// Position is one open trade for one asset.
type Position struct {
	id      int64
	asset   string
	venue   venue.Venue
	policy  risk.Policy
	log     zerolog.Logger
	buy     market.Order
	owned   float64
	heldFor int
}

// Open converts budget quote-asset into lots at the given tick and places a
// market buy. The owned quantity is then reconciled against the venue balance
// rather than the nominal fill, absorbing dust left over from prior trades.
func Open(ctx context.Context, id int64, vn venue.Venue, policy risk.Policy, tick market.Tick, budget float64, log zerolog.Logger) (*Position, error) {
	p := &Position{
		id:     id,
		asset:  tick.Asset,
		venue:  vn,
		policy: policy,
		log:    log.With().Int64("position", id).Str("asset", tick.Asset).Logger(),
	}

	req, err := tick.LotsToBuy(budget)
	if err != nil {
		return nil, err
	}
	order, err := vn.Buy(ctx, req, false)
	if err != nil {
		return nil, fmt.Errorf("place buy: %w", err)
	}
	p.buy = order
	p.logOrder(order, req.ExpectedPrice)

	outcome := order.Outcome()
	owned, err := vn.Balance(ctx, venue.BalanceQuery{Override: &outcome, Asset: tick.Asset})
	if err != nil {
		return nil, fmt.Errorf("reconcile owned quantity: %w", err)
	}
	p.owned = owned
	return p, nil
}

// Buy returns the order that opened the position.
func (p *Position) Buy() market.Order { return p.buy }

// HeldFor counts evaluation cycles since the position opened.
func (p *Position) HeldFor() int { return p.heldFor }

// Evaluate re-quotes the position at the current tick and liquidates when the
// policy says so. A nil result with a nil error means "hold".
func (p *Position) Evaluate(ctx context.Context, tick market.Tick, force bool) (*Result, error) {
	p.heldFor++

	req, err := tick.LotsToSell(p.owned)
	if err != nil {
		return nil, err
	}
	simulated, err := p.venue.Sell(ctx, req, true)
	if err != nil {
		return nil, fmt.Errorf("simulate sell: %w", err)
	}
	potential, err := simulated.PnL(p.buy)
	if err != nil {
		return nil, err
	}
	p.log.Debug().
		Float64("ratio", potential.Ratio).
		Int("held_for", p.heldFor).
		Msg("position re-quoted")

	reason, liquidate := p.policy.Decide(potential.Ratio, force)
	if !liquidate {
		return nil, nil
	}

	sell, err := p.venue.Sell(ctx, req, false)
	if err != nil {
		return nil, fmt.Errorf("place sell: %w", err)
	}
	p.logOrder(sell, req.ExpectedPrice)
	return &Result{Asset: p.asset, Buy: p.buy, Sell: sell, Reason: reason, HeldFor: p.heldFor}, nil
}

func (p *Position) logOrder(order market.Order, expectedPrice float64) {
	p.log.Info().
		Str("side", string(order.Side)).
		Float64("price", order.Price()).
		Float64("quantity", order.Quantity()).
		Float64("outcome", order.Outcome()).
		Float64("price_mismatch", order.PriceMismatch(expectedPrice)).
		Msg(order.String())
}
