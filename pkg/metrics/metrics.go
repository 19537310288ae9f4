package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coinsub",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of one reconciliation sweep",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms ~ 400s
	})

	SweepSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coinsub",
		Name:      "sweep_skipped_total",
		Help:      "Sweeps skipped because the previous one still holds the lock",
	})

	TxProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinsub",
		Name:      "tx_processed_total",
		Help:      "Pending transactions evaluated per outcome",
	}, []string{"outcome"}) // confirmed / partial / expired / held / unknown_balance / no_change

	PriceValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinsub",
		Name:      "btc_price_usd",
		Help:      "Last BTC/USD price returned by the oracle",
	})

	SourceFallbackDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coinsub",
		Name:      "source_fallback_depth",
		Help:      "How many sources were tried before one answered",
		Buckets:   prometheus.LinearBuckets(1, 1, 20),
	}, []string{"kind"}) // price / balance

	SourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coinsub",
		Name:      "source_errors_total",
		Help:      "Failures per external source",
	}, []string{"kind", "source", "reason"})

	DoubleSpendAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coinsub",
		Name:      "double_spend_alerts_total",
		Help:      "Transactions held on suspected double spend",
	})

	AddressPoolAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinsub",
		Name:      "address_pool_available",
		Help:      "Receiving addresses currently available for assignment",
	})
)
