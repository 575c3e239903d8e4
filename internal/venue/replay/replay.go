// Package replay implements a venue backed by recorded ticker history, used
// to evaluate strategies against past markets without touching an exchange.
package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/venue"
)

// Reference data is permissive on purpose: sizing rejections should come from
// strategy parameters, not replayed lot filters.
var replayRules = market.LotRules{
	MinQty:      0.001,
	MaxQty:      999999999,
	StepQty:     0.001,
	MinNotional: 0.0001,
}

type tickerRow struct {
	Timestamp    string  `csv:"Timestamp"`
	AssetToQuote float64 `csv:"AssetToQuote"`
	QuoteToAsset float64 `csv:"QuoteToAsset"`
	Volume       float64 `csv:"Volume"`
}

// Venue replays per-asset ticker CSVs, one row per asset per ListTickers call.
type Venue struct {
	quote  string
	log    zerolog.Logger
	assets []string
	rows   map[string][]tickerRow
	cursor map[string]int
}

// New loads every <ASSET>.csv under referenceDir.
func New(referenceDir, quoteAsset string, log zerolog.Logger) (*Venue, error) {
	entries, err := os.ReadDir(referenceDir)
	if err != nil {
		return nil, fmt.Errorf("read reference dir: %w", err)
	}

	v := &Venue{
		quote:  quoteAsset,
		log:    log.With().Str("venue", "replay").Logger(),
		rows:   make(map[string][]tickerRow),
		cursor: make(map[string]int),
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		asset := strings.TrimSuffix(name, ".csv")
		file, err := os.Open(filepath.Join(referenceDir, name))
		if err != nil {
			return nil, fmt.Errorf("open reference %s: %w", name, err)
		}
		var rows []tickerRow
		err = gocsv.UnmarshalFile(file, &rows)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("decode reference %s: %w", name, err)
		}
		v.rows[asset] = rows
		v.assets = append(v.assets, asset)
	}
	if len(v.assets) == 0 {
		return nil, fmt.Errorf("no reference CSVs under %s", referenceDir)
	}
	sort.Strings(v.assets)
	v.log.Info().Int("assets", len(v.assets)).Msg("reference data loaded")
	return v, nil
}

// ListTickers emits the next recorded row for every asset. Exhausted history
// is a fatal data-source failure, ending the session.
func (v *Venue) ListTickers(_ context.Context) ([]market.Tick, error) {
	ticks := make([]market.Tick, 0, len(v.assets))
	for _, asset := range v.assets {
		idx := v.cursor[asset]
		rows := v.rows[asset]
		if idx >= len(rows) {
			return nil, &venue.Error{Op: fmt.Sprintf("reference data exhausted for %s", asset)}
		}
		v.cursor[asset] = idx + 1
		row := rows[idx]
		ticks = append(ticks, market.Tick{
			Asset:        asset,
			Quote:        v.quote,
			QuoteToAsset: row.QuoteToAsset,
			AssetToQuote: row.AssetToQuote,
			ServerTime:   parseTimestamp(row.Timestamp),
			Rules:        replayRules,
		})
	}
	return ticks, nil
}

// Balance honors overrides (reconciliation), reports no per-asset leftovers,
// and starts the session from a unit quote balance.
func (v *Venue) Balance(_ context.Context, query venue.BalanceQuery) (float64, error) {
	if query.Override != nil {
		return *query.Override, nil
	}
	if query.Asset != "" {
		return 0, nil
	}
	return 1, nil
}

// Buy fills synthetically at the expected price.
func (v *Venue) Buy(_ context.Context, req market.ConversionRequest, _ bool) (market.Order, error) {
	return venue.SimulatedMarketOrder(req, venue.Commission), nil
}

// Sell fills synthetically at the expected price.
func (v *Venue) Sell(_ context.Context, req market.ConversionRequest, _ bool) (market.Order, error) {
	return venue.SimulatedMarketOrder(req, venue.Commission), nil
}

// QuoteAsset names the session quote asset.
func (v *Venue) QuoteAsset() string { return v.quote }

// Close is a no-op; all data lives in memory.
func (v *Venue) Close() error { return nil }

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
