/*
Package metrics exposes Prometheus instrumentation for the detection engine.

Analysis metrics:
  - stego_analyses_total: analyses by media type and result (clean, detected, error)
  - stego_analysis_duration_seconds: wall time per analysis by media type
  - stego_test_failures_total: battery tests that errored, by method

External detector metrics:
  - stego_external_calls_total: external detector calls by method and result
    (success, failure, rejected)
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open
  - circuit_breaker_state_transitions_total

Pipeline metrics:
  - stego_pipeline_files_in_flight
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stego_analyses_total",
			Help: "Total number of media analyses",
		},
		[]string{"media_type", "result"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stego_analysis_duration_seconds",
			Help:    "Media analysis duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"media_type"},
	)

	TestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stego_test_failures_total",
			Help: "Statistical tests that failed during an analysis",
		},
		[]string{"method"},
	)

	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stego_external_calls_total",
			Help: "External detector invocations",
		},
		[]string{"method", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	PipelineInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stego_pipeline_files_in_flight",
			Help: "Files currently being analyzed by the batch pipeline",
		},
	)
)

// RecordAnalysis records one finished analysis
func RecordAnalysis(mediaType string, detected, failed bool, duration time.Duration) {
	result := "clean"
	switch {
	case failed:
		result = "error"
	case detected:
		result = "detected"
	}
	AnalysesTotal.WithLabelValues(mediaType, result).Inc()
	AnalysisDuration.WithLabelValues(mediaType).Observe(duration.Seconds())
}

// RecordTestFailure counts a battery test that errored
func RecordTestFailure(method string) {
	TestFailures.WithLabelValues(method).Inc()
}

// RecordExternalCall counts an external detector call
func RecordExternalCall(method, result string) {
	ExternalCalls.WithLabelValues(method, result).Inc()
}

// TrackInFlight moves the pipeline in-flight gauge
func TrackInFlight(inc bool) {
	if inc {
		PipelineInFlight.Inc()
	} else {
		PipelineInFlight.Dec()
	}
}
