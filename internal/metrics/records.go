// Package metrics provides Prometheus metrics for the event consumers.
package metrics

import (
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes. Labels stay bounded: no usernames or entity ids.
const (
    OutcomeSucceeded = "succeeded"
    OutcomeSkipped   = "skipped"
    OutcomeFailed    = "failed"
)

var (
    // RecordsTotal counts processed records by consumer and outcome.
    RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "user_events_engine_records_total",
        Help: "Total number of records attempted, by consumer and outcome.",
    }, []string{"consumer", "outcome"})

    // DeadLetteredTotal counts failed records republished to the dead-letter exchange.
    DeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "user_events_engine_dead_lettered_total",
        Help: "Total number of failed records republished for later resubmission, by consumer.",
    }, []string{"consumer"})

    // BatchDuration observes how long a whole batch took to attempt.
    BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
        Name:    "user_events_engine_batch_duration_seconds",
        Help:    "Time spent attempting every record of a batch, by consumer.",
        Buckets: prometheus.DefBuckets,
    }, []string{"consumer"})
)

func RecordOutcome(consumer, outcome string) {
    RecordsTotal.WithLabelValues(consumer, outcome).Inc()
}

func RecordDeadLettered(consumer string) {
    DeadLetteredTotal.WithLabelValues(consumer).Inc()
}

func ObserveBatch(consumer string, elapsed time.Duration) {
    BatchDuration.WithLabelValues(consumer).Observe(elapsed.Seconds())
}
