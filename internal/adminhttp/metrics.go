// Package adminhttp exposes the relay's health and metrics surface on a
// separate listener from the voice-data TCP port, modeled on the
// teacher's internal/api (chi router) and internal/metrics (Prometheus
// collector) packages.
package adminhttp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientQueueDepths is satisfied by the relay registry: it reports the
// active client count and each client's current queue depth, without
// adminhttp needing to import the relay package's concrete types.
type ClientQueueDepths interface {
	ActiveClientCount() int
	QueueDepths() map[string]int
}

// Collector is a prometheus.Collector reporting relay activity. Unlike
// the teacher's Collector (internal/metrics), which polls disparate
// database-backed providers at scrape time, most of this Collector's
// counters are updated inline by the mixer via atomic operations — the
// mixer runs far more often than any scrape interval ever will — while
// the active-client count and per-client queue depths are still
// computed lazily at scrape time from the registry.
type Collector struct {
	clients ClientQueueDepths

	framesMixed       *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	mixCycleSeconds   prometheus.Histogram
	activeClientsDesc *prometheus.Desc
	queueDepthDesc    *prometheus.Desc
}

// NewCollector creates a Collector backed by clients for the dynamic
// gauges. The returned Collector also exposes the FramesMixed,
// FramesDropped and CycleObserved methods used as relay.MixerMetrics
// callbacks.
func NewCollector(clients ClientQueueDepths) *Collector {
	return &Collector{
		clients: clients,
		framesMixed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_frames_mixed_total",
			Help: "Total number of mixed output frames produced.",
		}, nil),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxrelay_frames_dropped_total",
			Help: "Total number of frames dropped under backpressure, by reason.",
		}, []string{"reason"}),
		mixCycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxrelay_mix_cycle_seconds",
			Help:    "Wall-clock duration of one mixer tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		activeClientsDesc: prometheus.NewDesc(
			"voxrelay_clients_active",
			"Number of currently connected clients.",
			nil, nil,
		),
		queueDepthDesc: prometheus.NewDesc(
			"voxrelay_queue_depth",
			"Current send-queue depth for one client.",
			[]string{"client_id"}, nil,
		),
	}
}

// FramesMixed returns the callback the mixer invokes once per produced
// output frame.
func (c *Collector) FramesMixed() func() {
	return func() { c.framesMixed.WithLabelValues().Inc() }
}

// FramesDropped returns the callback the mixer invokes once per dropped
// frame, labeled by reason.
func (c *Collector) FramesDropped() func(reason string) {
	return func(reason string) { c.framesDropped.WithLabelValues(reason).Inc() }
}

// CycleObserved returns the callback the mixer invokes with each tick's
// observed duration.
func (c *Collector) CycleObserved() func(time.Duration) {
	return func(d time.Duration) { c.mixCycleSeconds.Observe(d.Seconds()) }
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.framesMixed.Describe(ch)
	c.framesDropped.Describe(ch)
	c.mixCycleSeconds.Describe(ch)
	ch <- c.activeClientsDesc
	ch <- c.queueDepthDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.framesMixed.Collect(ch)
	c.framesDropped.Collect(ch)
	c.mixCycleSeconds.Collect(ch)

	ch <- prometheus.MustNewConstMetric(
		c.activeClientsDesc, prometheus.GaugeValue,
		float64(c.clients.ActiveClientCount()),
	)

	for id, depth := range c.clients.QueueDepths() {
		ch <- prometheus.MustNewConstMetric(
			c.queueDepthDesc, prometheus.GaugeValue,
			float64(depth), id,
		)
	}
}
