package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	PositionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "positions_opened_total", Help: "Positions opened"},
		[]string{"symbol"},
	)
	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "positions_closed_total", Help: "Positions closed, by liquidation reason"},
		[]string{"symbol", "reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Currently open positions"},
	)
	WalletCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wallet_capital", Help: "Tradable capital in quote asset"},
	)
	WalletSavings = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wallet_savings", Help: "Protected savings in quote asset"},
	)
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "realized_pnl", Help: "Aggregate realized profit in quote asset"},
	)
	DividendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dividends_total", Help: "Profit skimmed into savings"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, OrdersTotal, PositionsOpened, PositionsClosed,
		OpenPositions, WalletCapital, WalletSavings, RealizedPnL, DividendsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
