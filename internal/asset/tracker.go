// Package asset bridges an asset's bounded tick history with its at-most-one
// open position.
package asset

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/position"
	"github.com/razieloren/hype-train/internal/risk"
	"github.com/razieloren/hype-train/internal/strategy"
	"github.com/razieloren/hype-train/internal/venue"
)

// Tracker owns one asset's tick window and position.
type Tracker struct {
	symbol   string
	capacity int
	window   []market.Tick
	trigger  strategy.Trigger
	log      zerolog.Logger
	pos      *position.Position
}

// NewTracker builds a tracker whose window holds triggerLength+2 ticks.
func NewTracker(symbol string, trigger strategy.Trigger, triggerLength int, log zerolog.Logger) *Tracker {
	capacity := triggerLength + 2
	return &Tracker{
		symbol:   symbol,
		capacity: capacity,
		window:   make([]market.Tick, 0, capacity),
		trigger:  trigger,
		log:      log.With().Str("asset", symbol).Logger(),
	}
}

// Symbol returns the tracked asset id.
func (t *Tracker) Symbol() string { return t.symbol }

// HasOpenPosition reports whether a trade is currently open.
func (t *Tracker) HasOpenPosition() bool { return t.pos != nil }

// Invested is the gross quote cost of the open position, zero when none.
func (t *Tracker) Invested() float64 {
	if t.pos == nil {
		return 0
	}
	return t.pos.Buy().Price()
}

// OnTick appends the observation, evicting the oldest beyond capacity.
func (t *Tracker) OnTick(tick market.Tick) {
	if len(t.window) == t.capacity {
		copy(t.window, t.window[1:])
		t.window = t.window[:t.capacity-1]
	}
	t.window = append(t.window, tick)
}

// TryOpen opens a position with the newest tick when the trigger fired.
// A nil position with a nil error means the trigger has not fired yet.
func (t *Tracker) TryOpen(ctx context.Context, id int64, vn venue.Venue, policy risk.Policy, budget float64) (*position.Position, error) {
	if t.pos != nil {
		return nil, position.ErrAlreadyOpen
	}
	if len(t.window) == 0 || !t.trigger.Triggered(t.window) {
		return nil, nil
	}
	pos, err := position.Open(ctx, id, vn, policy, t.window[len(t.window)-1], budget, t.log)
	if err != nil {
		return nil, err
	}
	t.pos = pos
	return pos, nil
}

// TryClose evaluates the open position at the newest tick. On liquidation the
// position is destroyed and its result returned; nil/nil means "still holding".
func (t *Tracker) TryClose(ctx context.Context, force bool) (*position.Result, error) {
	if t.pos == nil {
		return nil, position.ErrNotOpen
	}
	result, err := t.pos.Evaluate(ctx, t.window[len(t.window)-1], force)
	if err != nil || result == nil {
		return nil, err
	}
	t.pos = nil
	return result, nil
}
