package trader

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/config"
	"github.com/razieloren/hype-train/internal/journal"
	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/risk"
	"github.com/razieloren/hype-train/internal/venue"
	"github.com/razieloren/hype-train/internal/wallet"
)

var testRules = market.LotRules{MinQty: 0.001, MaxQty: 1e9, StepQty: 0.001, MinNotional: 0.0001}

func tick(symbol string, quoteToAsset float64) market.Tick {
	return market.Tick{
		Asset:        symbol,
		Quote:        "BTC",
		QuoteToAsset: quoteToAsset,
		AssetToQuote: 1 / quoteToAsset,
		ServerTime:   time.Now(),
		Rules:        testRules,
	}
}

// scriptedVenue serves a fixed tick script (repeating the last step once
// exhausted) and simulates every fill. errs injects failures by fetch call
// number; onCall fires after each successful fetch so tests can cancel
// mid-session.
type scriptedVenue struct {
	script           [][]market.Tick
	scriptIdx        int
	call             int
	errs             map[int]error
	onCall           func(call int)
	initialBalance   float64
	balanceAfterSell *float64
	buys             int
	realSells        int
}

func (v *scriptedVenue) ListTickers(context.Context) ([]market.Tick, error) {
	v.call++
	if err, ok := v.errs[v.call]; ok {
		return nil, err
	}
	idx := v.scriptIdx
	if idx >= len(v.script) {
		idx = len(v.script) - 1
	}
	v.scriptIdx++
	if v.onCall != nil {
		v.onCall(v.call)
	}
	return v.script[idx], nil
}

func (v *scriptedVenue) Balance(_ context.Context, query venue.BalanceQuery) (float64, error) {
	if v.realSells > 0 && v.balanceAfterSell != nil {
		return *v.balanceAfterSell, nil
	}
	if query.Override != nil {
		return *query.Override, nil
	}
	if query.Asset != "" {
		return 0, nil
	}
	return v.initialBalance, nil
}

func (v *scriptedVenue) Buy(_ context.Context, req market.ConversionRequest, simulate bool) (market.Order, error) {
	if !simulate {
		v.buys++
	}
	return venue.SimulatedMarketOrder(req, venue.Commission), nil
}

func (v *scriptedVenue) Sell(_ context.Context, req market.ConversionRequest, simulate bool) (market.Order, error) {
	if !simulate {
		v.realSells++
	}
	return venue.SimulatedMarketOrder(req, venue.Commission), nil
}

func (v *scriptedVenue) QuoteAsset() string { return "BTC" }
func (v *scriptedVenue) Close() error       { return nil }

func testTradeConfig() config.Trade {
	return config.Trade{
		IgnitesToTrigger:  2,
		StopLoss:          0.95,
		TakeProfit:        1.05,
		UpdateIntervalSec: 0.001,
		MaxPositions:      2,
		TreasuryRatio:     0.5,
		MinimumBuyPrice:   0.0001,
		DividendRate:      0.1,
	}
}

func newTestTrader(t *testing.T, vn venue.Venue, banned []string) (*Trader, *wallet.Ledger) {
	t.Helper()
	ledger, err := wallet.NewLedger(context.Background(), vn, wallet.Config{
		MaxSlots:        2,
		TreasuryRatio:   0.5,
		MinimumBuyPrice: 0.0001,
		DividendRate:    0.1,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLedger returned error: %v", err)
	}
	return New(testTradeConfig(), vn, ledger, journal.NopRecorder{}, banned, zerolog.Nop()), ledger
}

func TestRunOpensOnTriggerAndDrainsOnCancel(t *testing.T) {
	// Three rising quote-to-asset steps ignite AAA on the third fetch; the
	// banned BNB shows the same run but must never trade. After cancellation
	// the fifth step crashes through the stop-loss so draining liquidates.
	vn := &scriptedVenue{
		initialBalance: 1000,
		script: [][]market.Tick{
			{tick("AAA", 100), tick("BNB", 100)},
			{tick("AAA", 101), tick("BNB", 101)},
			{tick("AAA", 103), tick("BNB", 103)},
			{tick("AAA", 103), tick("BNB", 103)},
			{tick("AAA", 130), tick("BNB", 130)},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vn.onCall = func(call int) {
		if call == 4 {
			cancel()
		}
	}

	tr, ledger := newTestTrader(t, vn, []string{"BNB"})
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if vn.buys != 1 {
		t.Fatalf("expected exactly one buy (banned asset must not trade), got %d", vn.buys)
	}
	if vn.realSells != 1 {
		t.Fatalf("expected one liquidation sell, got %d", vn.realSells)
	}
	results := ledger.Results()
	if len(results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(results))
	}
	if results[0].Asset != "AAA" || results[0].Reason != risk.StopLoss {
		t.Fatalf("unexpected result: asset=%s reason=%s", results[0].Asset, results[0].Reason)
	}
	if tr.openCount() != 0 {
		t.Fatalf("expected no surviving positions, got %d", tr.openCount())
	}
	if pnl := tr.PnL(); pnl.Absolute >= 0 {
		t.Fatalf("stop-loss exit should realize a loss, got %+v", pnl)
	}
}

func TestRunDrainsTwoOpenPositions(t *testing.T) {
	// Both assets ignite on the third fetch and fill both slots in the same
	// cycle. Cancellation then drains: the crash step liquidates both, and
	// nothing survives to the sweep.
	vn := &scriptedVenue{
		initialBalance: 1000,
		script: [][]market.Tick{
			{tick("AAA", 100), tick("BBB", 200)},
			{tick("AAA", 101), tick("BBB", 202)},
			{tick("AAA", 103), tick("BBB", 206)},
			{tick("AAA", 103), tick("BBB", 206)},
			{tick("AAA", 130), tick("BBB", 260)},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vn.onCall = func(call int) {
		if call == 4 {
			cancel()
		}
	}

	tr, ledger := newTestTrader(t, vn, nil)
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if vn.buys != 2 {
		t.Fatalf("expected both slots filled, got %d buys", vn.buys)
	}
	results := ledger.Results()
	if len(results) != 2 {
		t.Fatalf("expected both positions recorded, got %d", len(results))
	}
	for _, result := range results {
		if result.Reason != risk.StopLoss {
			t.Fatalf("expected stop-loss exits, got %s for %s", result.Reason, result.Asset)
		}
	}
	if tr.openCount() != 0 {
		t.Fatalf("drain left %d positions open", tr.openCount())
	}
}

func TestRunForceClosesWhenDrainExhausts(t *testing.T) {
	// Prices hold inside the stop/take band forever, so draining never
	// liquidates and the terminal sweep must force-close.
	vn := &scriptedVenue{
		initialBalance: 1000,
		script: [][]market.Tick{
			{tick("AAA", 100)},
			{tick("AAA", 101)},
			{tick("AAA", 103)},
			{tick("AAA", 103)},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vn.onCall = func(call int) {
		if call == 4 {
			cancel()
		}
	}

	tr, ledger := newTestTrader(t, vn, nil)
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	results := ledger.Results()
	if len(results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(results))
	}
	if results[0].Reason != risk.Forced {
		t.Fatalf("expected forced liquidation, got %s", results[0].Reason)
	}
	if tr.openCount() != 0 {
		t.Fatalf("force-close sweep left %d positions open", tr.openCount())
	}
}

func TestSweepAbortsOnFatalFetch(t *testing.T) {
	// Prices hold in-band through the whole drain, and the sweep's final
	// fetch fails fatally: the session must terminate with the error instead
	// of force-closing on stale ticks.
	fatal := &venue.Error{Op: "list tickers", Err: context.DeadlineExceeded}
	sweepFetch := 4 + maxDrainCycles + 1
	vn := &scriptedVenue{
		initialBalance: 1000,
		errs:           map[int]error{sweepFetch: fatal},
		script: [][]market.Tick{
			{tick("AAA", 100)},
			{tick("AAA", 101)},
			{tick("AAA", 103)},
			{tick("AAA", 103)},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vn.onCall = func(call int) {
		if call == 4 {
			cancel()
		}
	}

	tr, ledger := newTestTrader(t, vn, nil)
	err := tr.Run(ctx)
	if err == nil {
		t.Fatalf("expected fatal fetch to abort the sweep")
	}
	if venue.IsTransient(err) {
		t.Fatalf("fatal error misclassified as transient: %v", err)
	}
	if vn.realSells != 0 {
		t.Fatalf("no liquidation may happen on stale ticks, got %d sells", vn.realSells)
	}
	if len(ledger.Results()) != 0 {
		t.Fatalf("expected no recorded results, got %d", len(ledger.Results()))
	}
	if tr.openCount() != 1 {
		t.Fatalf("expected the position to survive termination, got %d open", tr.openCount())
	}
}

func TestRunEntersDrainOnInsolvency(t *testing.T) {
	// The account reports only the protected savings after the sell, leaving
	// zero capital: the session must end on its own, without cancellation.
	exhausted := 500.0
	vn := &scriptedVenue{
		initialBalance:   1000,
		balanceAfterSell: &exhausted,
		script: [][]market.Tick{
			{tick("AAA", 100)},
			{tick("AAA", 101)},
			{tick("AAA", 103)},
			{tick("AAA", 130)},
		},
	}

	tr, ledger := newTestTrader(t, vn, nil)
	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not terminate on insolvency")
	}
	if len(ledger.Results()) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(ledger.Results()))
	}
	if ledger.Capital() > 0 {
		t.Fatalf("expected exhausted capital, got %v", ledger.Capital())
	}
}

func TestRunTerminatesOnFatalFetch(t *testing.T) {
	fatal := &venue.Error{Op: "list tickers", Err: context.DeadlineExceeded}
	vn := &scriptedVenue{
		initialBalance: 1000,
		script:         [][]market.Tick{{tick("AAA", 100)}},
		errs:           map[int]error{3: fatal},
	}

	tr, _ := newTestTrader(t, vn, nil)
	err := tr.Run(context.Background())
	if err == nil {
		t.Fatalf("expected fatal fetch to terminate the session")
	}
	if venue.IsTransient(err) {
		t.Fatalf("fatal error misclassified as transient: %v", err)
	}
}

func TestTransientFetchIsRetried(t *testing.T) {
	// One transient failure mid-script must not lose the session; the run
	// still ignites, trades, and closes normally. The dip step after the
	// open breaks the upward run, so the drain crash cannot re-ignite.
	transient := &venue.Error{Op: "list tickers", Transient: true, Err: context.DeadlineExceeded}
	vn := &scriptedVenue{
		initialBalance: 1000,
		errs:           map[int]error{2: transient},
		script: [][]market.Tick{
			{tick("AAA", 100)},
			{tick("AAA", 101)},
			{tick("AAA", 103)},
			{tick("AAA", 102)},
			{tick("AAA", 130)},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vn.onCall = func(call int) {
		if call == 5 {
			cancel()
		}
	}

	tr, ledger := newTestTrader(t, vn, nil)
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if vn.buys != 1 {
		t.Fatalf("expected exactly one buy, got %d", vn.buys)
	}
	results := ledger.Results()
	if len(results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(results))
	}
	if results[0].Reason != risk.StopLoss {
		t.Fatalf("expected stop-loss exit, got %s", results[0].Reason)
	}
}
