package prover

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/provideplatform/fold/verifier"
)

const metricsNamespace = "fold"

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "steps_total",
		Help:      "Fold steps applied, by kind.",
	}, []string{"kind"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "step_duration_seconds",
		Help:      "Wall time of a fold step, by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"kind"})

	compressionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "compression_duration_seconds",
		Help:      "Wall time of compressing a fold into a succinct proof.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "verifications_total",
		Help:      "Proof verifications, by proof kind and outcome.",
	}, []string{"kind", "outcome"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "sessions_active",
		Help:      "Fold sessions held in the registry.",
	})

	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "jobs_in_flight",
		Help:      "Background fold, verify and compress jobs currently running.",
	})
)

func observeStep(kind string, started time.Time) {
	stepsTotal.WithLabelValues(kind).Inc()
	stepDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func observeCompression(started time.Time) {
	compressionDuration.Observe(time.Since(started).Seconds())
}

func observeVerification(kind verifier.Kind, err error) {
	outcome := "verified"
	if err != nil {
		outcome = "failed"
	}
	verificationsTotal.WithLabelValues(string(kind), outcome).Inc()
}
