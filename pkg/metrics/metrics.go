// Package metrics provides extraction metrics for tap-twilio using
// Prometheus. Every tap run owns its own registry so concurrent runs in
// one process (tests, embedding) never share counters.
//
// # Basic Usage
//
//	collector := metrics.NewCollector()
//	seq := stream.Instances(ctx, accessor, opts,
//	    stream.WithObserver(collector.StreamObserver("IncomingPhoneNumbers")))
//
//	for line, err := range seq {
//	    ...
//	    collector.RecordEmitted("IncomingPhoneNumbers")
//	}
//
// # Metric Types
//
// Counter: pages fetched, records emitted, fetch errors (label "stream")
// Histogram: page fetch latency in seconds (label "stream")
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajitpratap0/tap-twilio/pkg/stream"
)

const namespace = "tap_twilio"

// Collector records the metrics of one tap run.
type Collector struct {
	registry          *prometheus.Registry
	pagesFetched      *prometheus.CounterVec   // Pages returned by the API
	recordsEmitted    *prometheus.CounterVec   // Messages written to the sink
	fetchErrors       *prometheus.CounterVec   // Failed page fetches
	pageFetchDuration *prometheus.HistogramVec // Page fetch latency distribution
	startTime         time.Time
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		pagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Total number of pages fetched from the Twilio API",
			},
			[]string{"stream"},
		),
		recordsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_emitted_total",
				Help:      "Total number of RECORD messages written",
			},
			[]string{"stream"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Total number of failed page fetches",
			},
			[]string{"stream"},
		),
		pageFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_fetch_duration_seconds",
				Help:      "Page fetch latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"stream"},
		),
		startTime: time.Now(),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// RecordEmitted counts one message written for streamName.
func (c *Collector) RecordEmitted(streamName string) {
	c.recordsEmitted.WithLabelValues(streamName).Inc()
}

// StreamObserver returns a page observer that records into c under
// streamName.
func (c *Collector) StreamObserver(streamName string) stream.Observer {
	return &streamObserver{
		pages:    c.pagesFetched.WithLabelValues(streamName),
		errors:   c.fetchErrors.WithLabelValues(streamName),
		duration: c.pageFetchDuration.WithLabelValues(streamName),
	}
}

type streamObserver struct {
	pages    prometheus.Counter
	errors   prometheus.Counter
	duration prometheus.Observer
}

func (o *streamObserver) PageFetched(_ int, elapsed time.Duration) {
	o.pages.Inc()
	o.duration.Observe(elapsed.Seconds())
}

func (o *streamObserver) PageFailed(_ error, elapsed time.Duration) {
	o.errors.Inc()
	o.duration.Observe(elapsed.Seconds())
}
