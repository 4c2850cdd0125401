package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lumnicode"

type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	GenerationSession *prometheus.CounterVec
	FilesGenerated    prometheus.Counter
	ProviderCalls     *prometheus.CounterVec
	KeyValidations    *prometheus.CounterVec
	ProgressClients   prometheus.Gauge
}

var (
	once   sync.Once
	global *Metrics
)

// Global returns the process-wide metrics, registering them on first use.
func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern, method and status",
			}, []string{"route", "method", "status"}),
			HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route pattern",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			GenerationSession: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_sessions_total",
				Help:      "Generation sessions by final status",
			}, []string{"status"}),
			FilesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generated_files_total",
				Help:      "Files written by generation sessions",
			}),
			ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "AI provider calls by provider and outcome",
			}, []string{"provider", "outcome"}),
			KeyValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_validations_total",
				Help:      "API key validations by provider and outcome",
			}, []string{"provider", "outcome"}),
			ProgressClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "progress_connections",
				Help:      "Open progress WebSocket connections",
			}),
		}
		prometheus.MustRegister(
			global.HTTPRequests,
			global.HTTPDuration,
			global.GenerationSession,
			global.FilesGenerated,
			global.ProviderCalls,
			global.KeyValidations,
			global.ProgressClients,
		)
	})
	return global
}

// Outcome labels a call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
