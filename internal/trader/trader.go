// Package trader runs the trading session: a poll loop that feeds asset
// trackers, opens positions on triggers, liquidates per policy, and drains
// everything on shutdown.
package trader

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/asset"
	"github.com/razieloren/hype-train/internal/config"
	"github.com/razieloren/hype-train/internal/journal"
	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/metrics"
	"github.com/razieloren/hype-train/internal/position"
	"github.com/razieloren/hype-train/internal/risk"
	"github.com/razieloren/hype-train/internal/strategy"
	"github.com/razieloren/hype-train/internal/venue"
	"github.com/razieloren/hype-train/internal/wallet"
)

// Trader owns the session state machine. A single goroutine calls Run; nothing
// here needs locking.
type Trader struct {
	cfg      config.Trade
	venue    venue.Venue
	ledger   *wallet.Ledger
	journal  journal.Recorder
	log      zerolog.Logger
	policy   risk.Policy
	trigger  strategy.Trigger
	banned   map[string]struct{}
	trackers map[string]*asset.Tracker
	nextID   int64

	// insolvent flips when the ledger reports capital exhaustion; the session
	// then stops opening and drains what is left.
	insolvent bool
}

// New wires a trading session over the given venue and ledger.
func New(cfg config.Trade, vn venue.Venue, ledger *wallet.Ledger, rec journal.Recorder, bannedAssets []string, log zerolog.Logger) *Trader {
	banned := make(map[string]struct{}, len(bannedAssets))
	for _, symbol := range bannedAssets {
		banned[symbol] = struct{}{}
	}
	return &Trader{
		cfg:      cfg,
		venue:    vn,
		ledger:   ledger,
		journal:  rec,
		log:      log.With().Str("component", "trader").Logger(),
		policy:   risk.Policy{StopLoss: cfg.StopLoss, TakeProfit: cfg.TakeProfit},
		trigger:  strategy.Build("ignition", cfg.IgnitesToTrigger),
		banned:   banned,
		trackers: make(map[string]*asset.Tracker),
		nextID:   1,
	}
}

// PnL reports the session's realized profit so far.
func (tr *Trader) PnL() market.PnL { return tr.ledger.PnL() }

// Run executes the session until cancellation or a fatal failure: trade while
// active, stop opening and drain open positions, then force-close whatever is
// left. In-flight orders are never interrupted; draining and the final sweep
// run under a detached context so cancellation cannot strand a position.
func (tr *Trader) Run(ctx context.Context) error {
	if err := tr.active(ctx); err != nil {
		return err
	}
	tr.log.Info().Int("open", tr.openCount()).Msg("leaving active phase, draining")
	if err := tr.drain(); err != nil {
		return err
	}
	return tr.sweep()
}

// active polls until cancellation or insolvency. A non-nil return is fatal.
func (tr *Trader) active(ctx context.Context) error {
	for {
		if err := tr.fetch(ctx); err != nil {
			if !venue.IsTransient(err) {
				return err
			}
			tr.log.Warn().Err(err).Msg("transient tick fetch failure, retrying next cycle")
		} else {
			tr.closeEligible(ctx, false, false)
			if !tr.insolvent {
				tr.openEligible(ctx)
			}
		}
		if tr.insolvent {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(tr.cfg.UpdateInterval()):
		}
	}
}

// maxDrainCycles bounds how long a drain waits for positions to close on
// their own before the sweep force-closes them.
const maxDrainCycles = 120

// drain keeps liquidating per policy until no position remains or the cycle
// budget runs out. Cancellation has already happened, so waits use plain
// sleeps; only a fatal data-source failure aborts mid-drain.
func (tr *Trader) drain() error {
	ctx := context.Background()
	for cycles := 0; tr.openCount() > 0 && cycles < maxDrainCycles; cycles++ {
		if err := tr.fetch(ctx); err != nil {
			if !venue.IsTransient(err) {
				return err
			}
			tr.log.Warn().Err(err).Msg("transient tick fetch failure while draining")
		} else {
			tr.closeEligible(ctx, false, true)
		}
		if tr.openCount() == 0 {
			break
		}
		time.Sleep(tr.cfg.UpdateInterval())
	}
	return nil
}

// sweep force-closes every surviving position regardless of PnL. A fatal
// data-source failure still terminates the session immediately; only a
// transient one is worth sweeping on stale ticks.
func (tr *Trader) sweep() error {
	if tr.openCount() == 0 {
		return nil
	}
	ctx := context.Background()
	if err := tr.fetch(ctx); err != nil {
		if !venue.IsTransient(err) {
			return err
		}
		tr.log.Warn().Err(err).Msg("final fetch failed, sweeping on stale ticks")
	}
	tr.log.Info().Int("open", tr.openCount()).Msg("force-closing remaining positions")
	tr.closeEligible(ctx, true, true)
	return nil
}

// fetch pulls one tick per asset into the trackers, creating trackers lazily.
func (tr *Trader) fetch(ctx context.Context) error {
	ticks, err := tr.venue.ListTickers(ctx)
	if err != nil {
		return err
	}
	for _, tick := range ticks {
		if _, ok := tr.banned[tick.Asset]; ok {
			continue
		}
		tracker, ok := tr.trackers[tick.Asset]
		if !ok {
			tracker = asset.NewTracker(tick.Asset, tr.trigger, tr.cfg.IgnitesToTrigger, tr.log)
			tr.trackers[tick.Asset] = tracker
		}
		tracker.OnTick(tick)
		metrics.TicksTotal.WithLabelValues(tick.Asset).Inc()
	}
	return nil
}

// closeEligible evaluates every open position in symbol order. Per-asset
// failures are logged and skipped. Ledger insolvency flips the session flag
// unless swallowIns is set (draining cannot open positions anyway).
func (tr *Trader) closeEligible(ctx context.Context, force, swallowIns bool) {
	for _, symbol := range tr.symbols() {
		tracker := tr.trackers[symbol]
		if !tracker.HasOpenPosition() {
			continue
		}
		result, err := tracker.TryClose(ctx, force)
		if err != nil {
			tr.logAssetError(symbol, "close", err)
			continue
		}
		if result == nil {
			continue
		}
		tr.recordClose(ctx, *result, swallowIns)
	}
}

func (tr *Trader) recordClose(ctx context.Context, result position.Result, swallowIns bool) {
	pnl := result.PnL()
	tr.log.Info().
		Str("asset", result.Asset).
		Str("reason", string(result.Reason)).
		Float64("pnl_ratio", pnl.Ratio).
		Float64("pnl_absolute", pnl.Absolute).
		Int("held_for", result.HeldFor).
		Msg("position closed")
	metrics.PositionsClosed.WithLabelValues(result.Asset, string(result.Reason)).Inc()
	metrics.OrdersTotal.WithLabelValues(result.Asset, string(market.Sell)).Inc()
	metrics.OpenPositions.Set(float64(tr.openCount()))
	tr.journal.Record(journal.FromResult(result))

	if err := tr.ledger.RecordSell(ctx, result); err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			if !swallowIns {
				tr.log.Warn().Msg("capital exhausted, entering drain")
				tr.insolvent = true
			}
			return
		}
		tr.log.Error().Err(err).Str("asset", result.Asset).Msg("ledger reconciliation failed")
	}
}

// openEligible tries triggers on assets without a position while slots remain.
func (tr *Trader) openEligible(ctx context.Context) {
	open := tr.openCount()
	for _, symbol := range tr.symbols() {
		if open >= tr.cfg.MaxPositions {
			return
		}
		tracker := tr.trackers[symbol]
		if tracker.HasOpenPosition() {
			continue
		}
		budget, err := tr.ledger.BudgetForAcquisition(open)
		if err != nil {
			if errors.Is(err, wallet.ErrInsufficientFunds) {
				tr.log.Warn().Msg("no capital left for new positions, entering drain")
				tr.insolvent = true
			}
			return
		}
		pos, err := tracker.TryOpen(ctx, tr.nextID, tr.venue, tr.policy, budget)
		if err != nil {
			tr.logAssetError(symbol, "open", err)
			continue
		}
		if pos == nil {
			continue
		}
		tr.nextID++
		open++
		tr.ledger.RecordAcquisition(pos.Buy().Price())
		metrics.PositionsOpened.WithLabelValues(symbol).Inc()
		metrics.OrdersTotal.WithLabelValues(symbol, string(market.Buy)).Inc()
		metrics.OpenPositions.Set(float64(open))
	}
}

// logAssetError classifies per-asset failures: expected rejections log quietly,
// anything else loudly. None of them abort the cycle.
func (tr *Trader) logAssetError(symbol, op string, err error) {
	var sizing *market.SizingError
	switch {
	case errors.As(err, &sizing),
		errors.Is(err, position.ErrAlreadyOpen),
		errors.Is(err, position.ErrNotOpen):
		tr.log.Debug().Err(err).Str("asset", symbol).Msgf("skipping %s", op)
	default:
		tr.log.Error().Err(err).Str("asset", symbol).Msgf("%s failed", op)
	}
}

func (tr *Trader) openCount() int {
	count := 0
	for _, tracker := range tr.trackers {
		if tracker.HasOpenPosition() {
			count++
		}
	}
	return count
}

func (tr *Trader) symbols() []string {
	symbols := make([]string, 0, len(tr.trackers))
	for symbol := range tr.trackers {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
