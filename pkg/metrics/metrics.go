// Package metrics records mutation outcomes and subscription activity.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
	OutcomeDeclined = "declined"
	OutcomePending  = "pending"
)

// Recorder owns the console collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	mutations     *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
	subscriptions prometheus.Gauge
	requests      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopdesk_mutations_total",
				Help: "Mutation gateway calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopdesk_snapshots_total",
				Help: "Snapshots applied to live views by collection",
			},
			[]string{"collection"},
		),
		subscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopdesk_subscriptions_active",
				Help: "Live view subscriptions currently mounted",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopdesk_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
	r.registry.MustRegister(r.mutations, r.snapshots, r.subscriptions, r.requests)
	return r
}

// Registry exposes the registry for the /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Mutation counts one gateway call.
func (r *Recorder) Mutation(op, outcome string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(op, outcome).Inc()
}

// Snapshot counts one applied snapshot.
func (r *Recorder) Snapshot(collection string) {
	if r == nil {
		return
	}
	r.snapshots.WithLabelValues(collection).Inc()
}

// Mounted adjusts the active subscription gauge.
func (r *Recorder) Mounted(delta int) {
	if r == nil {
		return
	}
	r.subscriptions.Add(float64(delta))
}

// Request counts one HTTP response.
func (r *Recorder) Request(route string, code int) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
