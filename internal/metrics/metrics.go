package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	batchesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutyroster",
			Name:      "batches_generated_total",
			Help:      "Count of rotation batches generated by initial status.",
		},
		[]string{"status"},
	)

	batchDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutyroster",
			Name:      "batch_decision_total",
			Help:      "Count of approval decisions over pending batches.",
		},
		[]string{"decision"},
	)

	swapDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutyroster",
			Name:      "swap_decision_total",
			Help:      "Count of swap requests by lifecycle event.",
		},
		[]string{"event"},
	)

	overridesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutyroster",
			Name:      "overrides_total",
			Help:      "Count of schedule and day overrides by kind.",
		},
		[]string{"kind"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dutyroster",
			Name:      "notifications_total",
			Help:      "Count of notification deliveries by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(batchesGenerated, batchDecision, swapDecision,
			overridesCreated, notificationsSent)
	})
}

func IncBatchGenerated(status string) {
	batchesGenerated.WithLabelValues(status).Inc()
}

func IncBatchDecision(decision string) {
	batchDecision.WithLabelValues(decision).Inc()
}

func IncSwapEvent(event string) {
	swapDecision.WithLabelValues(event).Inc()
}

func IncOverride(kind string) {
	overridesCreated.WithLabelValues(kind).Inc()
}

func IncNotification(outcome string) {
	notificationsSent.WithLabelValues(outcome).Inc()
}
