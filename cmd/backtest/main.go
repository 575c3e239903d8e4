package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/config"
	"github.com/razieloren/hype-train/internal/journal"
	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/trader"
	"github.com/razieloren/hype-train/internal/util"
	"github.com/razieloren/hype-train/internal/venue/replay"
	"github.com/razieloren/hype-train/internal/wallet"
)

// The sweep grid mirrors the hand-tuned ranges that proved interesting on
// historical BTC-quoted data.
var (
	sweepIgnites    = []int{4, 5}
	sweepStopLoss   = []float64{0.9, 0.91}
	sweepTakeProfit = []float64{1.005, 1.007, 1.009}
)

func runOnce(cfg *config.Config, referenceDir string, log zerolog.Logger) (market.PnL, error) {
	vn, err := replay.New(referenceDir, cfg.Venue.QuoteAsset, log)
	if err != nil {
		return market.PnL{}, err
	}
	defer vn.Close()

	ctx := context.Background()
	ledger, err := wallet.NewLedger(ctx, vn, wallet.Config{
		MaxSlots:        cfg.Trade.MaxPositions,
		TreasuryRatio:   cfg.Trade.TreasuryRatio,
		MinimumBuyPrice: cfg.Trade.MinimumBuyPrice,
		DividendRate:    cfg.Trade.DividendRate,
	}, log)
	if err != nil {
		return market.PnL{}, err
	}

	tr := trader.New(cfg.Trade, vn, ledger, journal.NopRecorder{}, cfg.Venue.BannedAssets, log)
	if err := tr.Run(ctx); err != nil {
		// Replay sessions end with an exhausted-data error by design; the
		// realized PnL up to that point is still the answer.
		log.Debug().Err(err).Msg("replay ended")
	}
	return tr.PnL(), nil
}

func sweep(cfg *config.Config, referenceDir string, log zerolog.Logger) error {
	type combo struct {
		ignites    int
		stopLoss   float64
		takeProfit float64
		pnl        market.PnL
	}
	var best *combo
	for _, ignites := range sweepIgnites {
		for _, stopLoss := range sweepStopLoss {
			for _, takeProfit := range sweepTakeProfit {
				run := *cfg
				run.Trade.IgnitesToTrigger = ignites
				run.Trade.StopLoss = stopLoss
				run.Trade.TakeProfit = takeProfit
				pnl, err := runOnce(&run, referenceDir, log)
				if err != nil {
					return err
				}
				fmt.Printf("ignites=%d stop_loss=%.3f take_profit=%.3f pnl=%.8f (%.4f%%)\n",
					ignites, stopLoss, takeProfit, pnl.Absolute, pnl.Ratio*100)
				if best == nil || pnl.Absolute > best.pnl.Absolute {
					best = &combo{ignites: ignites, stopLoss: stopLoss, takeProfit: takeProfit, pnl: pnl}
				}
			}
		}
	}
	fmt.Printf("best: ignites=%d stop_loss=%.3f take_profit=%.3f pnl=%.8f\n",
		best.ignites, best.stopLoss, best.takeProfit, best.pnl.Absolute)
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	referenceDir := flag.String("reference", "", "directory of per-asset ticker CSVs (overrides config)")
	doSweep := flag.Bool("sweep", false, "grid-search trigger and policy parameters")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLogger(cfg.App.LogLevel)

	reference := cfg.Venue.ReferenceDir
	if *referenceDir != "" {
		reference = *referenceDir
	}
	if reference == "" {
		fmt.Fprintln(os.Stderr, "a reference directory is required (-reference or venue.reference_dir)")
		os.Exit(1)
	}

	if *doSweep {
		if err := sweep(cfg, reference, log); err != nil {
			log.Fatal().Err(err).Msg("sweep failed")
		}
		return
	}

	pnl, err := runOnce(cfg, reference, log)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
	fmt.Printf("pnl=%.8f (%.4f%%)\n", pnl.Absolute, pnl.Ratio*100)
}
