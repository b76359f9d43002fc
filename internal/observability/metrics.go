package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	orderOutcomeCounter     *prometheus.CounterVec
	refundCounter           *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	providerHealthGauge     *prometheus.GaugeVec
	ledgerBrokenChainGauge  prometheus.Gauge
	statusCacheCounter      *prometheus.CounterVec
	idempotencyCounter      *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		orderOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Orders reaching a terminal status, by status",
		}, []string{"status"})

		refundCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Wallet refunds issued, by reason",
		}, []string{"reason"})

		providerRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Upstream SMS provider call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation", "result"})

		providerHealthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "provider_healthy",
			Help: "1 when the provider is HEALTHY, 0.5 DEGRADED, 0 DOWN",
		}, []string{"provider"})

		ledgerBrokenChainGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_broken_chains",
			Help: "Users whose balance snapshot chain failed the last audit",
		})

		statusCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_cache_events_total",
			Help: "Order status cache outcomes",
		}, []string{"outcome"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			orderOutcomeCounter,
			refundCounter,
			providerRequestDuration,
			providerHealthGauge,
			ledgerBrokenChainGauge,
			statusCacheCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementOrderOutcome(status string) {
	if orderOutcomeCounter == nil {
		return
	}
	orderOutcomeCounter.WithLabelValues(status).Inc()
}

func IncrementRefund(reason string) {
	if refundCounter == nil {
		return
	}
	refundCounter.WithLabelValues(reason).Inc()
}

func ObserveProviderRequest(provider, operation, result string, duration time.Duration) {
	if providerRequestDuration == nil {
		return
	}
	providerRequestDuration.WithLabelValues(provider, operation, result).Observe(duration.Seconds())
}

func SetProviderHealth(provider, healthStatus string) {
	if providerHealthGauge == nil {
		return
	}
	value := 0.0
	switch healthStatus {
	case "HEALTHY":
		value = 1.0
	case "DEGRADED":
		value = 0.5
	}
	providerHealthGauge.WithLabelValues(provider).Set(value)
}

func SetLedgerBrokenChains(count int) {
	if ledgerBrokenChainGauge == nil {
		return
	}
	ledgerBrokenChainGauge.Set(float64(count))
}

func IncrementStatusCacheEvent(outcome string) {
	if statusCacheCounter == nil {
		return
	}
	statusCacheCounter.WithLabelValues(outcome).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
