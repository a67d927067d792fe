// Package telemetry exposes prometheus instrumentation for the bridge
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bluebubbles"

// Metrics bundles the collectors used across the server
type Metrics struct {
	registry *prometheus.Registry

	// decode engine
	ItemsSubmitted     prometheus.Counter
	ItemsResolved      *prometheus.CounterVec // outcome: completed|no_response|timeout|helper_failure|flushed
	BatchesProcessed   *prometheus.CounterVec // result: completed|failed
	BatchesCached      prometheus.Gauge
	PruneEvictions     prometheus.Counter
	CapacityRejections prometheus.Counter
	BatchFillSize      prometheus.Histogram

	// helper process
	HelperRestarts prometheus.Counter
	HelperRequests *prometheus.CounterVec // outcome: ok|timeout|error
	ProtocolDrops  prometheus.Counter

	// poller
	PollTicks     prometheus.Counter
	MessagesSeen  prometheus.Counter
	EventsEmitted *prometheus.CounterVec // type
}

// New builds a Metrics set on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.ItemsSubmitted = newCounter(reg, "decode", "items_submitted_total",
		"Decode work items accepted by the dispatcher")
	m.ItemsResolved = newCounterVec(reg, "decode", "items_resolved_total",
		"Decode work items resolved, by outcome", []string{"outcome"})
	m.BatchesProcessed = newCounterVec(reg, "decode", "batches_processed_total",
		"Batches dispatched to the helper, by result", []string{"result"})
	m.BatchesCached = newGauge(reg, "decode", "batches_cached",
		"Batches currently held in the dispatcher cache")
	m.PruneEvictions = newCounter(reg, "decode", "prune_evictions_total",
		"Terminal batches evicted by pruning")
	m.CapacityRejections = newCounter(reg, "decode", "capacity_rejections_total",
		"Submissions rejected because the batch cache was full")
	m.BatchFillSize = newHistogram(reg, "decode", "batch_fill_size",
		"Items per batch at dispatch time", prometheus.LinearBuckets(1, 5, 10))

	m.HelperRestarts = newCounter(reg, "helper", "restarts_total",
		"Helper process respawns after exit")
	m.HelperRequests = newCounterVec(reg, "helper", "requests_total",
		"Requests sent to the helper, by outcome", []string{"outcome"})
	m.ProtocolDrops = newCounter(reg, "helper", "protocol_drops_total",
		"Malformed or unmatchable protocol records discarded")

	m.PollTicks = newCounter(reg, "poller", "ticks_total",
		"Poll passes over the message store")
	m.MessagesSeen = newCounter(reg, "poller", "messages_seen_total",
		"New message rows observed")
	m.EventsEmitted = newCounterVec(reg, "poller", "events_emitted_total",
		"Events fanned out to subscribers, by type", []string{"type"})

	return m
}

// Handler serves the registry in prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func newCounter(reg prometheus.Registerer, sub, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: sub, Name: name, Help: help,
	})
	reg.MustRegister(c)
	return c
}

func newCounterVec(reg prometheus.Registerer, sub, name, help string, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: sub, Name: name, Help: help,
	}, labels)
	reg.MustRegister(c)
	return c
}

func newGauge(reg prometheus.Registerer, sub, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: sub, Name: name, Help: help,
	})
	reg.MustRegister(g)
	return g
}

func newHistogram(reg prometheus.Registerer, sub, name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: sub, Name: name, Help: help, Buckets: buckets,
	})
	reg.MustRegister(h)
	return h
}
