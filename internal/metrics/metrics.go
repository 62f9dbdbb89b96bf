package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modq",
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Number of poll cycles by outcome.",
		}, []string{"outcome"},
	)
	pendingRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modq",
			Subsystem: "poll",
			Name:      "pending_records",
			Help:      "Pending records in the current snapshot.",
		},
	)
	duplicateKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modq",
			Subsystem: "poll",
			Name:      "duplicate_keys",
			Help:      "Key collisions excluded from the current snapshot.",
		},
	)
	promptsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modq",
			Subsystem: "prompt",
			Name:      "sent_total",
			Help:      "Number of decision prompts dispatched.",
		},
	)
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modq",
			Subsystem: "decision",
			Name:      "total",
			Help:      "Number of decision attempts by verdict and outcome.",
		}, []string{"verdict", "outcome"},
	)
	storeRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modq",
			Subsystem: "store",
			Name:      "write_retries_total",
			Help:      "Write-back retries after transient store failures.",
		},
	)
)

// Register registers all collectors with r. Safe to call once; duplicate
// registration is reported by prometheus itself.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		pollCycles, pendingRecords, duplicateKeys, promptsSent, decisions, storeRetries,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the /metrics handler for the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func PollCycle(outcome string) {
	if regOK.Load() {
		pollCycles.WithLabelValues(outcome).Inc()
	}
}

func SetPending(n int) {
	if regOK.Load() {
		pendingRecords.Set(float64(n))
	}
}

func SetDuplicateKeys(n int) {
	if regOK.Load() {
		duplicateKeys.Set(float64(n))
	}
}

func PromptsSent(n int) {
	if regOK.Load() {
		promptsSent.Add(float64(n))
	}
}

func Decision(verdict, outcome string) {
	if regOK.Load() {
		decisions.WithLabelValues(verdict, outcome).Inc()
	}
}

func StoreRetry() {
	if regOK.Load() {
		storeRetries.Inc()
	}
}
