package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sniper_bot"

var (
	// PollCyclesTotal counts completed wallet poll cycles
	PollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_cycles_total",
		Help:      "Number of wallet poll cycles executed",
	})

	// BalanceFetchErrorsTotal counts failed balance lookups
	BalanceFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_fetch_errors_total",
		Help:      "Number of failed balance fetches during polling",
	})

	// DepositsDetectedTotal counts deposit events
	DepositsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_detected_total",
		Help:      "Number of balance increases above the dust threshold",
	})

	// TransfersTotal counts outgoing transfers by kind (auto, manual) and status
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Number of outgoing transfers",
	}, []string{"kind", "status"})

	// MonitoredWalletsGauge tracks registry size
	MonitoredWalletsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitored_wallets",
		Help:      "Number of addresses in the monitor registry",
	})

	// PendingTransactionsGauge tracks open wizard entries
	PendingTransactionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_transactions",
		Help:      "Number of in-flight interactive transfer entries",
	})

	// HealthStatusGauge is 0 healthy, 1 warning, 2 critical
	HealthStatusGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_status",
		Help:      "Overall status of the last health check (0 healthy, 1 warning, 2 critical)",
	})

	// ChatMessagesTotal counts outbound chat API calls
	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_messages_total",
		Help:      "Outbound chat API calls by operation and status",
	}, []string{"operation", "status"})

	// LedgerRequestDuration tracks RPC latency per method
	LedgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_request_duration_seconds",
		Help:      "Latency of ledger RPC calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	// HTTPRequestsTotal counts ops API requests
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Ops API requests by method, route and status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks ops API latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Ops API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
