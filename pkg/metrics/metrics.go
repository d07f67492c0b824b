// Package metrics provides Prometheus metrics for the price engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SourceRequestsTotal counts adapter calls by outcome.
	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_requests_total",
			Help: "Total number of quote requests sent to price sources",
		},
		[]string{"source", "status"},
	)

	// SourceRequestDuration is a histogram of adapter call latencies.
	SourceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_request_duration_seconds",
			Help:    "Latency of quote requests to price sources",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source", "region"},
	)

	// SourceLastUpdate is a gauge of the last successful response from a source.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_update_timestamp",
			Help: "Unix timestamp of last successful response from source",
		},
		[]string{"source"},
	)

	// FanOutDuration is a histogram of the full fan-out join.
	FanOutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_fanout_duration_seconds",
			Help:    "Duration of a concurrent fan-out across price sources",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"},
	)

	// FanOutSurvivors is a histogram of how many sources answered per fan-out.
	FanOutSurvivors = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_fanout_survivors",
			Help:    "Number of sources that returned a quote in a fan-out",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"scope"},
	)

	// CacheRequestsTotal counts result cache lookups.
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_requests_total",
			Help: "Result cache lookups by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	// PremiumRate is the last computed premium per symbol.
	PremiumRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "premium_rate_percent",
			Help: "Last computed domestic premium in percent",
		},
		[]string{"symbol"},
	)

	// PremiumInsufficientTotal counts premium computations that had no result.
	PremiumInsufficientTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_insufficient_data_total",
			Help: "Premium computations that could not produce a result",
		},
		[]string{"symbol"},
	)

	// NotificationsTotal counts notifier hand-offs by outcome.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_notifications_total",
			Help: "Premium results handed to notifiers",
		},
		[]string{"notifier", "status"},
	)
)

var registerOnce sync.Once

// Init initializes Prometheus metrics registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SourceRequestsTotal,
			SourceRequestDuration,
			SourceHealth,
			SourceLastUpdate,
			FanOutDuration,
			FanOutSurvivors,
			CacheRequestsTotal,
			PremiumRate,
			PremiumInsufficientTotal,
			NotificationsTotal,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceRequest records one adapter call.
func RecordSourceRequest(source, status string, duration time.Duration) {
	SourceRequestsTotal.WithLabelValues(source, status).Inc()
	SourceRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
	if status == "ok" {
		SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
	}
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, region string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source, region).Set(val)
}

// RecordFanOut records a completed fan-out.
func RecordFanOut(scope string, survivors int, duration time.Duration) {
	FanOutDuration.WithLabelValues(scope).Observe(duration.Seconds())
	FanOutSurvivors.WithLabelValues(scope).Observe(float64(survivors))
}

// RecordCache records a result cache hit or miss.
func RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

// RecordPremium records a computed premium rate.
func RecordPremium(symbol string, rate float64) {
	PremiumRate.WithLabelValues(symbol).Set(rate)
}

// RecordPremiumInsufficient records a premium computation without a result.
func RecordPremiumInsufficient(symbol string) {
	PremiumInsufficientTotal.WithLabelValues(symbol).Inc()
}

// RecordNotification records a notifier hand-off.
func RecordNotification(notifier, status string) {
	NotificationsTotal.WithLabelValues(notifier, status).Inc()
}
