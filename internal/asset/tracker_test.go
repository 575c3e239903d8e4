package asset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/position"
	"github.com/razieloren/hype-train/internal/risk"
	"github.com/razieloren/hype-train/internal/strategy"
	"github.com/razieloren/hype-train/internal/venue"
)

type stubVenue struct{}

func (stubVenue) ListTickers(context.Context) ([]market.Tick, error) { return nil, nil }

func (stubVenue) Balance(_ context.Context, query venue.BalanceQuery) (float64, error) {
	if query.Override != nil {
		return *query.Override, nil
	}
	return 1, nil
}

func (stubVenue) Buy(_ context.Context, req market.ConversionRequest, _ bool) (market.Order, error) {
	return venue.SimulatedMarketOrder(req, venue.Commission), nil
}

func (stubVenue) Sell(_ context.Context, req market.ConversionRequest, _ bool) (market.Order, error) {
	return venue.SimulatedMarketOrder(req, venue.Commission), nil
}

func (stubVenue) QuoteAsset() string { return "BTC" }
func (stubVenue) Close() error       { return nil }

func tickAt(price float64) market.Tick {
	return market.Tick{
		Asset:        "ETH",
		Quote:        "BTC",
		QuoteToAsset: price,
		AssetToQuote: 1 / price,
		ServerTime:   time.Now().UTC(),
		Rules:        market.LotRules{MinQty: 0.001, MaxQty: 1e9, StepQty: 0.001, MinNotional: 0.0001},
	}
}

func newTestTracker() *Tracker {
	return NewTracker("ETH", strategy.NewIgnition(2), 2, zerolog.Nop())
}

func TestWindowEvictsOldest(t *testing.T) {
	tracker := newTestTracker() // capacity 4
	for i := 1; i <= 6; i++ {
		tracker.OnTick(tickAt(float64(i)))
	}
	if len(tracker.window) != 4 {
		t.Fatalf("expected window capped at 4, got %d", len(tracker.window))
	}
	if tracker.window[0].QuoteToAsset != 3 || tracker.window[3].QuoteToAsset != 6 {
		t.Fatalf("expected oldest ticks evicted, got window %v..%v", tracker.window[0].QuoteToAsset, tracker.window[3].QuoteToAsset)
	}
}

func TestTryOpenRequiresTrigger(t *testing.T) {
	tracker := newTestTracker()
	tracker.OnTick(tickAt(2))
	tracker.OnTick(tickAt(1.9)) // dip, no ignition

	pos, err := tracker.TryOpen(context.Background(), 1, stubVenue{}, risk.Policy{}, 0.1)
	if err != nil {
		t.Fatalf("TryOpen returned error: %v", err)
	}
	if pos != nil || tracker.HasOpenPosition() {
		t.Fatalf("expected no position without a trigger")
	}
}

func TestTryOpenOnIgnition(t *testing.T) {
	tracker := newTestTracker()
	for _, px := range []float64{1, 1.1, 1.2} {
		tracker.OnTick(tickAt(px))
	}

	pos, err := tracker.TryOpen(context.Background(), 1, stubVenue{}, risk.Policy{StopLoss: 0.5, TakeProfit: 2}, 0.1)
	if err != nil {
		t.Fatalf("TryOpen returned error: %v", err)
	}
	if pos == nil || !tracker.HasOpenPosition() {
		t.Fatalf("expected an open position after ignition")
	}
	if tracker.Invested() <= 0 {
		t.Fatalf("expected invested amount, got %.10f", tracker.Invested())
	}

	if _, err := tracker.TryOpen(context.Background(), 2, stubVenue{}, risk.Policy{}, 0.1); !errors.Is(err, position.ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestTryCloseWithoutPosition(t *testing.T) {
	tracker := newTestTracker()
	tracker.OnTick(tickAt(1))
	if _, err := tracker.TryClose(context.Background(), false); !errors.Is(err, position.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestTryCloseDestroysPosition(t *testing.T) {
	tracker := newTestTracker()
	for _, px := range []float64{1, 1.1, 1.2} {
		tracker.OnTick(tickAt(px))
	}
	if _, err := tracker.TryOpen(context.Background(), 1, stubVenue{}, risk.Policy{StopLoss: 0.5, TakeProfit: 2}, 0.1); err != nil {
		t.Fatalf("TryOpen returned error: %v", err)
	}

	// Price collapse trips the stop-loss on the next evaluation.
	tracker.OnTick(tickAt(10)) // QuoteToAsset 10 => price 0.1, far below entry
	result, err := tracker.TryClose(context.Background(), false)
	if err != nil {
		t.Fatalf("TryClose returned error: %v", err)
	}
	if result == nil || result.Reason != risk.StopLoss {
		t.Fatalf("expected stop-loss result, got %+v", result)
	}
	if tracker.HasOpenPosition() {
		t.Fatalf("expected position destroyed after liquidation")
	}
	if _, err := tracker.TryClose(context.Background(), false); !errors.Is(err, position.ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen after destruction, got %v", err)
	}
}
