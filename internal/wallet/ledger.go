// Package wallet is the process-wide treasury: it allocates trading capital,
// skims profit dividends into protected savings, and raises insolvency.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/metrics"
	"github.com/razieloren/hype-train/internal/position"
	"github.com/razieloren/hype-train/internal/venue"
)

var (
	// ErrInsufficientFunds means no more capital is available to trade with.
	// After a sell this is terminal for the whole session.
	ErrInsufficientFunds = errors.New("no more funds available to trade with")
	// ErrTooManySlots means every position slot is taken.
	ErrTooManySlots = errors.New("too many open positions, cannot allocate budget")
)

// Config holds the treasury knobs.
type Config struct {
	MaxSlots        int
	TreasuryRatio   float64
	MinimumBuyPrice float64
	DividendRate    float64
}

// Ledger tracks capital, savings, and every closed-trade result.
type Ledger struct {
	cfg            Config
	venue          venue.Venue
	log            zerolog.Logger
	initialBalance float64
	capital        float64
	savings        float64
	results        []position.Result
}

// NewLedger splits a freshly queried account balance into tradable capital and
// protected savings according to the treasury ratio.
func NewLedger(ctx context.Context, vn venue.Venue, cfg Config, log zerolog.Logger) (*Ledger, error) {
	balance, err := vn.Balance(ctx, venue.BalanceQuery{})
	if err != nil {
		return nil, fmt.Errorf("query initial balance: %w", err)
	}
	l := &Ledger{
		cfg:            cfg,
		venue:          vn,
		log:            log.With().Str("component", "wallet").Logger(),
		initialBalance: balance,
		capital:        balance * cfg.TreasuryRatio,
		savings:        balance - balance*cfg.TreasuryRatio,
	}
	l.logState("INITIAL")
	l.log.Info().
		Float64("savings", l.savings).
		Float64("capital", l.capital).
		Str("quote", vn.QuoteAsset()).
		Msg("wallet initialized")
	return l, nil
}

// Capital is the currently tradable quote amount.
func (l *Ledger) Capital() float64 { return l.capital }

// Savings is the protected quote amount.
func (l *Ledger) Savings() float64 { return l.savings }

// Results returns the recorded closed trades.
func (l *Ledger) Results() []position.Result { return l.results }

// BudgetForAcquisition returns the quote budget for the next position given
// how many are already open. The capital is spread flat across the free slots,
// bounded below by the configured minimum buy price.
func (l *Ledger) BudgetForAcquisition(openCount int) (float64, error) {
	if openCount >= l.cfg.MaxSlots {
		return 0, ErrTooManySlots
	}
	budget := l.capital / float64(l.cfg.MaxSlots-openCount)
	if budget < l.cfg.MinimumBuyPrice {
		budget = l.cfg.MinimumBuyPrice
	}
	if budget > l.capital {
		return 0, fmt.Errorf("allocate budget %.10f > capital %.10f: %w", budget, l.capital, ErrInsufficientFunds)
	}
	return budget, nil
}

// RecordAcquisition deducts the position's gross buy cost from capital.
func (l *Ledger) RecordAcquisition(buyPrice float64) {
	l.capital -= buyPrice
	l.logState("BUY")
}

// RecordSell folds a closed trade into the ledger. Profitable trades skim a
// dividend into savings. Capital is re-derived from a freshly reported balance
// minus savings rather than incremented, absorbing commission drift against
// the true account state. Returns ErrInsufficientFunds when capital is gone.
func (l *Ledger) RecordSell(ctx context.Context, result position.Result) error {
	l.results = append(l.results, result)
	pnl := result.PnL()

	var dividend float64
	if pnl.Ratio > 1 {
		dividend = pnl.Absolute * l.cfg.DividendRate
	}
	if dividend > 0 {
		l.log.Debug().Float64("dividend", dividend).Msg("profitable sell, protecting dividend")
		metrics.DividendsTotal.Add(dividend)
	}

	override := l.capital + l.savings + result.Sell.Outcome()
	balance, err := l.venue.Balance(ctx, venue.BalanceQuery{Override: &override})
	if err != nil {
		return fmt.Errorf("reconcile balance: %w", err)
	}
	l.savings += dividend
	l.capital = balance - l.savings
	l.logState("SELL")
	if l.capital <= 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// PnL aggregates realized profit over all recorded results, relative to the
// initial balance.
func (l *Ledger) PnL() market.PnL {
	var absolute float64
	for _, result := range l.results {
		absolute += result.PnL().Absolute
	}
	return market.PnL{Ratio: absolute / l.initialBalance, Absolute: absolute}
}

func (l *Ledger) logState(afterAction string) {
	metrics.WalletCapital.Set(l.capital)
	metrics.WalletSavings.Set(l.savings)
	metrics.RealizedPnL.Set(l.PnL().Absolute)
	l.log.Info().
		Str("after_action", afterAction).
		Float64("savings", l.savings).
		Float64("capital", l.capital).
		Msg("wallet state")
}
