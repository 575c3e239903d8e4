package binance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	streamPingInterval = 30 * time.Second
	streamReadTimeout  = 90 * time.Second
	streamMaxBackoff   = 30 * time.Second
	// A connection that lived this long counts as healthy and resets the
	// reconnect backoff.
	streamHealthySession = time.Minute
)

// miniTicker is one entry of the !miniTicker@arr stream payload.
type miniTicker struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

// tickerStream maintains a last-price cache fed by the Binance mini-ticker
// websocket, so ListTickers can skip the heavy 24hr REST snapshot.
type tickerStream struct {
	url    string
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	prices map[string]float64
}

func newTickerStream(url string, log zerolog.Logger) *tickerStream {
	return &tickerStream{
		url:    url,
		log:    log.With().Str("component", "ticker_stream").Logger(),
		prices: make(map[string]float64),
	}
}

func (s *tickerStream) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *tickerStream) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// snapshot copies the current price cache. An empty map means the stream has
// not delivered a full payload yet.
func (s *tickerStream) snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices))
	for symbol, price := range s.prices {
		out[symbol] = price
	}
	return out
}

func (s *tickerStream) run(ctx context.Context) {
	defer close(s.done)
	var backoff time.Duration
	for {
		start := time.Now()
		err := s.consume(ctx)
		backoff = nextBackoff(backoff, time.Since(start))
		if err != nil {
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("ticker stream dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// nextBackoff doubles the reconnect delay up to the cap, starting over at one
// second whenever the previous session stayed up long enough to count as
// healthy.
func nextBackoff(current, session time.Duration) time.Duration {
	if current == 0 || session >= streamHealthySession {
		return time.Second
	}
	next := current * 2
	if next > streamMaxBackoff {
		next = streamMaxBackoff
	}
	return next
}

func (s *tickerStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.log.Info().Str("url", s.url).Msg("ticker stream connected")

	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	// Closing the connection on context cancellation unblocks ReadJSON.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		var payload []miniTicker
		if err := conn.ReadJSON(&payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.apply(payload)
	}
}

func (s *tickerStream) apply(payload []miniTicker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticker := range payload {
		price, err := strconv.ParseFloat(ticker.LastPrice, 64)
		if err != nil {
			continue
		}
		s.prices[ticker.Symbol] = price
	}
}
