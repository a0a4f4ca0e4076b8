// Package metrics exposes prometheus instrumentation for synthesis,
// engine bootstrap, artifact cleanup and playback.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "local_voice_synthesis_requests_total",
		Help: "Total number of synthesis requests by engine and result code",
	}, []string{"engine", "code"})

	synthesisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "local_voice_synthesis_duration_seconds",
		Help:    "Wall time spent synthesizing one request",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"engine"})

	synthesisInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "local_voice_synthesis_in_flight",
		Help: "Number of synthesis requests currently running",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "local_voice_cache_lookups_total",
		Help: "Synthesis cache lookups",
	}, []string{"result"}) // result: "hit" or "miss"

	// Bootstrap metrics
	bootstrapAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "local_voice_bootstrap_attempts_total",
		Help: "Engine bootstrap attempts by outcome",
	}, []string{"engine", "status"})

	bootstrapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "local_voice_bootstrap_duration_seconds",
		Help:    "Engine bootstrap duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"engine"})

	// Artifact metrics
	cleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "local_voice_cleanup_failures_total",
		Help: "Generated artifacts that could not be removed",
	})

	staleArtifactsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "local_voice_stale_artifacts_removed_total",
		Help: "Stale artifacts removed by the janitor",
	})

	// Playback metrics
	playbackResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "local_voice_playback_total",
		Help: "Playback attempts by player and status",
	}, []string{"player", "status"})

	// HTTP metrics
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "local_voice_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "status"})
)

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// SynthesisStarted marks a request entering the engine. The returned func
// records the outcome.
func SynthesisStarted(engine string) func(code string) {
	start := time.Now()
	synthesisInFlight.Inc()
	return func(code string) {
		synthesisInFlight.Dec()
		if code == "" {
			code = "OK"
		}
		synthesisRequests.WithLabelValues(engine, code).Inc()
		synthesisDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
	}
}

// RecordCacheLookup records a synthesis cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// RecordBootstrap matches the readiness observer signature.
func RecordBootstrap(engine string, d time.Duration, err error) {
	bootstrapAttempts.WithLabelValues(engine, status(err == nil)).Inc()
	bootstrapDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordCleanupFailure counts an artifact that survived cleanup.
func RecordCleanupFailure() {
	cleanupFailures.Inc()
}

// RecordStaleRemoved counts artifacts swept by the janitor.
func RecordStaleRemoved(n int) {
	staleArtifactsRemoved.Add(float64(n))
}

// RecordPlayback records one playback attempt.
func RecordPlayback(player string, ok bool) {
	if player == "" {
		player = "none"
	}
	playbackResults.WithLabelValues(player, status(ok)).Inc()
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, statusText(code)).Inc()
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
