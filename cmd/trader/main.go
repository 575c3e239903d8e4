package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/config"
	"github.com/razieloren/hype-train/internal/journal"
	"github.com/razieloren/hype-train/internal/metrics"
	"github.com/razieloren/hype-train/internal/secrets"
	"github.com/razieloren/hype-train/internal/trader"
	"github.com/razieloren/hype-train/internal/util"
	"github.com/razieloren/hype-train/internal/venue"
	"github.com/razieloren/hype-train/internal/venue/binance"
	"github.com/razieloren/hype-train/internal/venue/replay"
	"github.com/razieloren/hype-train/internal/wallet"
)

const passwordEnv = "HYPE_MASTER_PASSWORD"

func buildVenue(cfg *config.Config, log zerolog.Logger) (venue.Venue, error) {
	switch cfg.Venue.Name {
	case "binance":
		password := os.Getenv(passwordEnv)
		if password == "" {
			return nil, fmt.Errorf("%s is required to decrypt venue credentials", passwordEnv)
		}
		apiKey, err := secrets.Decrypt(cfg.Venue.APIKey, cfg.Venue.APIKeySalt, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt api key: %w", err)
		}
		secretKey, err := secrets.Decrypt(cfg.Venue.SecretKey, cfg.Venue.SecretKeySalt, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt secret key: %w", err)
		}
		var opts []binance.Option
		if cfg.Venue.Testnet {
			opts = append(opts, binance.WithTestnet())
		}
		if cfg.Venue.Stream {
			opts = append(opts, binance.WithStream())
		}
		return binance.New(apiKey, secretKey, cfg.Venue.QuoteAsset, log, opts...), nil
	case "replay":
		return replay.New(cfg.Venue.ReferenceDir, cfg.Venue.QuoteAsset, log)
	default:
		return nil, fmt.Errorf("unknown venue %q", cfg.Venue.Name)
	}
}

func buildJournal(cfg config.Journal) (journal.Recorder, func(), error) {
	if !cfg.Enabled {
		return journal.NopRecorder{}, func() {}, nil
	}
	recorder, err := journal.NewJSONLRecorder(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return recorder, func() { _ = recorder.Close() }, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	// Missing .env is fine; credentials can come from the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	vn, err := buildVenue(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build venue")
	}
	defer vn.Close()

	recorder, closeJournal, err := buildJournal(cfg.Journal)
	if err != nil {
		log.Fatal().Err(err).Msg("open journal")
	}
	defer closeJournal()

	ledger, err := wallet.NewLedger(ctx, vn, wallet.Config{
		MaxSlots:        cfg.Trade.MaxPositions,
		TreasuryRatio:   cfg.Trade.TreasuryRatio,
		MinimumBuyPrice: cfg.Trade.MinimumBuyPrice,
		DividendRate:    cfg.Trade.DividendRate,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize wallet")
	}

	tr := trader.New(cfg.Trade, vn, ledger, recorder, cfg.Venue.BannedAssets, log)
	log.Info().Str("venue", cfg.Venue.Name).Str("quote", cfg.Venue.QuoteAsset).Msg("trading session starting")
	if err := tr.Run(ctx); err != nil {
		log.Error().Err(err).Msg("trading session failed")
	}

	pnl := tr.PnL()
	log.Info().
		Float64("pnl_ratio", pnl.Ratio).
		Float64("pnl_absolute", pnl.Absolute).
		Msg("trading session done")
}
