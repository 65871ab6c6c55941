package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FusionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "fusion_cycle_seconds",
		Help: "Wall time of one multi-timeframe fusion cycle",
	})

	ForecastFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_failures_total",
		Help: "Per-timeframe forecast computations that degraded to zero",
	}, []string{"timeframe"})

	SignalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_decisions_total",
		Help: "Fused decisions emitted",
	}, []string{"decision"})

	SignalConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_confidence",
		Help: "Confidence of the latest fused signal",
	})

	Fills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulated_fills_total",
		Help: "Simulated fill legs appended to the ledger",
	}, []string{"symbol", "side"})

	RejectedOrders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rejected_orders_total",
		Help: "Orders rejected before execution",
	})

	WalletBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wallet_balance",
		Help: "Ledger wallet balance in quote currency",
	})

	Drawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "current_drawdown",
		Help: "Fractional drawdown from the high-water-mark",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Number of connected dashboard clients",
	})
)
