package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_scheduler_cycles_total",
		Help: "Count of discount scheduler cycles by result",
	}, []string{"result"})

	schedulerCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "staybook_scheduler_cycle_duration_seconds",
		Help:    "Duration of completed discount scheduler cycles",
		Buckets: prometheus.DefBuckets,
	})

	discountTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_discount_transitions_total",
		Help: "Count of discount lifecycle transitions by from/to state",
	}, []string{"from", "to"})

	malformedDiscounts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "staybook_discounts_malformed_total",
		Help: "Count of discounts skipped during scheduling due to validation failures",
	})

	priceRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_price_recomputes_total",
		Help: "Count of effective price recomputations by result",
	}, []string{"result"})

	cascadeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staybook_cascade_operations_total",
		Help: "Count of cascade operations by kind and result",
	}, []string{"kind", "result"})

	cascadeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staybook_cascade_duration_seconds",
		Help:    "Duration of cascade operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	cascadeEntities = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staybook_cascade_entities",
		Help:    "Entities marked per completed deletion cascade",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	}, []string{"kind"})
)

// ObserveCycle records the outcome of one scheduler cycle. A skipped
// cycle means the overlap guard suppressed the tick.
func ObserveCycle(result string, duration time.Duration) {
	schedulerCycles.WithLabelValues(result).Inc()
	if result != "skipped" {
		schedulerCycleDuration.Observe(duration.Seconds())
	}
}

// ObserveTransition records one discount state change.
func ObserveTransition(from, to string) {
	discountTransitions.WithLabelValues(from, to).Inc()
}

// ObserveMalformedDiscount counts a record isolated by validation.
func ObserveMalformedDiscount() {
	malformedDiscounts.Inc()
}

// ObservePriceRecompute records an effective price refresh attempt.
func ObservePriceRecompute(result string) {
	priceRecomputes.WithLabelValues(result).Inc()
}

// ObserveCascade records a deletion or depersonalization run.
func ObserveCascade(kind, result string, duration time.Duration) {
	cascadeOperations.WithLabelValues(kind, result).Inc()
	cascadeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCascadeSize records how many entities one cascade marked.
func ObserveCascadeSize(kind string, entities int) {
	cascadeEntities.WithLabelValues(kind).Observe(float64(entities))
}
