// Package metrics exposes blackboard store activity as Prometheus
// collectors. A nil *Metrics is valid and records nothing, so stores can
// call it unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blackboard"

// Post outcomes.
const (
	OutcomeCreated      = "created"
	OutcomeDeduplicated = "deduplicated"
	OutcomeDenied       = "denied"
	OutcomeInvalid      = "invalid"
)

// Sweep actions.
const (
	ActionTombstoned = "tombstoned"
	ActionPruned     = "pruned"
)

// Metrics holds the store collectors.
type Metrics struct {
	posts             *prometheus.CounterVec
	epoch             *prometheus.GaugeVec
	entries           *prometheus.GaugeVec
	swept             *prometheus.CounterVec
	compacted         *prometheus.CounterVec
	integrityFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Post attempts by outcome.",
		}, []string{"flavor", "outcome"}),
		epoch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch",
			Help:      "Current epoch.",
		}, []string{"store", "flavor"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Entries held in the store, tombstoned included.",
		}, []string{"store", "flavor"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_total",
			Help:      "Expired entries handled by the epoch sweep.",
		}, []string{"flavor", "action"}),
		compacted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compacted_total",
			Help:      "Entries removed by compaction.",
		}, []string{"flavor"}),
		integrityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_failures_total",
			Help:      "Failed chain verifications.",
		}, []string{"flavor"}),
	}

	for _, c := range []prometheus.Collector{m.posts, m.epoch, m.entries, m.swept, m.compacted, m.integrityFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Post counts a post attempt.
func (m *Metrics) Post(flavor, outcome string) {
	if m == nil {
		return
	}
	m.posts.WithLabelValues(flavor, outcome).Inc()
}

// Epoch records the current epoch of the named store.
func (m *Metrics) Epoch(store, flavor string, epoch uint64) {
	if m == nil {
		return
	}
	m.epoch.WithLabelValues(store, flavor).Set(float64(epoch))
}

// Entries records the size of the named store.
func (m *Metrics) Entries(store, flavor string, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(store, flavor).Set(float64(n))
}

// Swept counts entries the sweep handled with the given action.
func (m *Metrics) Swept(flavor, action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.swept.WithLabelValues(flavor, action).Add(float64(n))
}

// Compacted counts entries removed by compaction.
func (m *Metrics) Compacted(flavor string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.compacted.WithLabelValues(flavor).Add(float64(n))
}

// IntegrityFailure counts a failed verification.
func (m *Metrics) IntegrityFailure(flavor string) {
	if m == nil {
		return
	}
	m.integrityFailures.WithLabelValues(flavor).Inc()
}
