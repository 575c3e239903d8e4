// Package binance implements the live venue against the Binance spot API.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/razieloren/hype-train/internal/market"
	"github.com/razieloren/hype-train/internal/venue"
)

const (
	mainnetBaseURL = "https://api.binance.com"
	testnetBaseURL = "https://testnet.binance.vision"

	mainnetStreamURL = "wss://stream.binance.com:9443/ws/!miniTicker@arr"
	testnetStreamURL = "wss://stream.testnet.binance.vision/ws/!miniTicker@arr"

	defaultRulesTTL = 15 * time.Minute
)

// Option configures Venue construction parameters.
type Option func(*Venue)

// WithTestnet points the venue at the Binance spot testnet.
func WithTestnet() Option {
	return func(v *Venue) {
		v.baseURL = testnetBaseURL
		v.streamURL = testnetStreamURL
	}
}

// WithBaseURL overrides the REST endpoint (tests).
func WithBaseURL(baseURL string) Option {
	return func(v *Venue) { v.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithStream enables the websocket ticker cache instead of REST snapshots.
func WithStream() Option {
	return func(v *Venue) { v.streaming = true }
}

// Venue trades real coins through the Binance public API.
type Venue struct {
	baseURL   string
	streamURL string
	apiKey    string
	secretKey string
	quote     string
	client    *http.Client
	log       zerolog.Logger

	streaming bool
	stream    *tickerStream

	rules        map[string]market.LotRules
	rulesFetched time.Time
	rulesTTL     time.Duration
}

// New builds a live venue for the given quote asset.
func New(apiKey, secretKey, quoteAsset string, log zerolog.Logger, opts ...Option) *Venue {
	v := &Venue{
		baseURL:   mainnetBaseURL,
		streamURL: mainnetStreamURL,
		apiKey:    apiKey,
		secretKey: secretKey,
		quote:     quoteAsset,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("venue", "binance").Logger(),
		rulesTTL:  defaultRulesTTL,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.streaming {
		v.stream = newTickerStream(v.streamURL, v.log)
		v.stream.start()
	}
	return v
}

// QuoteAsset names the session quote asset.
func (v *Venue) QuoteAsset() string { return v.quote }

// Close tears down the websocket stream if one is running.
func (v *Venue) Close() error {
	if v.stream != nil {
		v.stream.stop()
	}
	return nil
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type ticker24hr struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// ListTickers returns one tick per symbol quoted in the session asset.
// Prices come from the websocket cache when streaming, otherwise from a
// 24hr-ticker snapshot.
func (v *Venue) ListTickers(ctx context.Context) ([]market.Tick, error) {
	var timeResp serverTimeResponse
	if err := v.public(ctx, "/api/v3/time", nil, &timeResp); err != nil {
		return nil, err
	}
	serverTime := time.UnixMilli(timeResp.ServerTime)

	if err := v.refreshRules(ctx); err != nil {
		return nil, err
	}

	prices, err := v.lastPrices(ctx)
	if err != nil {
		return nil, err
	}

	ticks := make([]market.Tick, 0, len(prices))
	for symbol, price := range prices {
		if !strings.HasSuffix(symbol, v.quote) || price <= 0 {
			continue
		}
		rules, ok := v.rules[symbol]
		if !ok {
			// No exchange data for this symbol.
			continue
		}
		ticks = append(ticks, market.Tick{
			Asset:        strings.TrimSuffix(symbol, v.quote),
			Quote:        v.quote,
			QuoteToAsset: 1 / price,
			AssetToQuote: price,
			ServerTime:   serverTime,
			Rules:        rules,
		})
	}
	return ticks, nil
}

func (v *Venue) lastPrices(ctx context.Context) (map[string]float64, error) {
	if v.stream != nil {
		if cached := v.stream.snapshot(); len(cached) > 0 {
			return cached, nil
		}
		// Cache still warming up, fall through to REST.
	}
	var tickers []ticker24hr
	if err := v.public(ctx, "/api/v3/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil {
			continue
		}
		prices[t.Symbol] = price
	}
	return prices, nil
}

type exchangeInfoResponse struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol  string           `json:"symbol"`
	Filters []exchangeFilter `json:"filters"`
}

type exchangeFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	MaxQty      string `json:"maxQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
}

func (v *Venue) refreshRules(ctx context.Context) error {
	if v.rules != nil && time.Since(v.rulesFetched) < v.rulesTTL {
		return nil
	}
	var info exchangeInfoResponse
	if err := v.public(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return err
	}
	rules := make(map[string]market.LotRules, len(info.Symbols))
	for _, symbol := range info.Symbols {
		parsed, ok := parseLotRules(symbol.Filters)
		if !ok {
			continue
		}
		rules[symbol.Symbol] = parsed
	}
	v.rules = rules
	v.rulesFetched = time.Now()
	return nil
}

// parseLotRules picks the strictest bound when a constraint appears in both
// the LOT_SIZE and MARKET_LOT_SIZE filters.
func parseLotRules(filters []exchangeFilter) (market.LotRules, bool) {
	var rules market.LotRules
	var sawLot, sawNotional bool
	for _, f := range filters {
		switch f.FilterType {
		case "LOT_SIZE", "MARKET_LOT_SIZE":
			minQty, _ := strconv.ParseFloat(f.MinQty, 64)
			maxQty, _ := strconv.ParseFloat(f.MaxQty, 64)
			step, _ := strconv.ParseFloat(f.StepSize, 64)
			if !sawLot {
				rules.MinQty, rules.MaxQty, rules.StepQty = minQty, maxQty, step
				sawLot = true
				continue
			}
			if minQty > rules.MinQty {
				rules.MinQty = minQty
			}
			if maxQty > 0 && maxQty < rules.MaxQty {
				rules.MaxQty = maxQty
			}
			if step > rules.StepQty {
				rules.StepQty = step
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			notional, _ := strconv.ParseFloat(f.MinNotional, 64)
			if !sawNotional || notional > rules.MinNotional {
				rules.MinNotional = notional
			}
			sawNotional = true
		}
	}
	return rules, sawLot
}

type accountResponse struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// Balance queries the free balance for the requested asset. Overrides are
// ignored: the live account is always the source of truth.
func (v *Venue) Balance(ctx context.Context, query venue.BalanceQuery) (float64, error) {
	asset := query.Asset
	if asset == "" {
		asset = v.quote
	}
	var account accountResponse
	if err := v.signed(ctx, http.MethodGet, "/api/v3/account", nil, &account); err != nil {
		return 0, err
	}
	for _, balance := range account.Balances {
		if balance.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(balance.Free, 64)
		if err != nil {
			return 0, &venue.Error{Op: "parse balance", Err: err}
		}
		return free, nil
	}
	return 0, nil
}

// Buy places a market buy, or returns a synthetic fill when simulating.
func (v *Venue) Buy(ctx context.Context, req market.ConversionRequest, simulate bool) (market.Order, error) {
	if simulate {
		return venue.SimulatedMarketOrder(req, venue.Commission), nil
	}
	return v.marketOrder(ctx, req)
}

// Sell places a market sell, or returns a synthetic fill when simulating.
func (v *Venue) Sell(ctx context.Context, req market.ConversionRequest, simulate bool) (market.Order, error) {
	if simulate {
		return venue.SimulatedMarketOrder(req, venue.Commission), nil
	}
	return v.marketOrder(ctx, req)
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	WorkingTime   int64  `json:"workingTime"`
	TransactTime  int64  `json:"transactTime"`
	Fills         []struct {
		TradeID         int64  `json:"tradeId"`
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
	} `json:"fills"`
}

func (v *Venue) marketOrder(ctx context.Context, req market.ConversionRequest) (market.Order, error) {
	params := url.Values{}
	params.Set("symbol", req.Asset+req.Quote)
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(req.Lots, 'f', -1, 64))
	params.Set("newOrderRespType", "FULL")

	var resp orderResponse
	if err := v.signed(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return market.Order{}, err
	}

	order := market.Order{
		Asset:         req.Asset,
		Quote:         req.Quote,
		Side:          req.Side,
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		WorkTime:      time.UnixMilli(resp.WorkingTime),
		TransactTime:  time.UnixMilli(resp.TransactTime),
	}
	for _, fill := range resp.Fills {
		price, _ := strconv.ParseFloat(fill.Price, 64)
		qty, _ := strconv.ParseFloat(fill.Qty, 64)
		commission, _ := strconv.ParseFloat(fill.Commission, 64)
		// Commission sometimes comes in a promo asset (e.g. BNB); it only
		// reduces our outcome when charged in the asset we receive.
		receiving := req.Asset
		if req.Side == market.Sell {
			receiving = req.Quote
		}
		if !strings.EqualFold(fill.CommissionAsset, receiving) {
			commission = 0
		}
		order.Fills = append(order.Fills, market.Fill{TradeID: fill.TradeID, Price: price, Quantity: qty, Commission: commission})
	}
	return order, nil
}

func (v *Venue) public(ctx context.Context, path string, params url.Values, out any) error {
	return v.request(ctx, http.MethodGet, path, params, false, out)
}

func (v *Venue) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(v.secretKey))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return v.request(ctx, method, path, params, true, out)
}

func (v *Venue) request(ctx context.Context, method, path string, params url.Values, authenticated bool, out any) error {
	endpoint := v.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return &venue.Error{Op: path, Err: err}
	}
	if authenticated {
		req.Header.Set("X-MBX-APIKEY", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return &venue.Error{Op: path, Transient: isNetworkTransient(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return &venue.Error{
			Op:        path,
			Transient: isStatusTransient(resp.StatusCode),
			Err:       fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &venue.Error{Op: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isNetworkTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Connection refused/reset and friends are worth a retry next cycle.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// isStatusTransient treats rate limiting and server-side failures as retryable.
func isStatusTransient(status int) bool {
	return status == http.StatusTooManyRequests || status == 418 || status >= 500
}
