// Package metrics exposes the publisher's counters in Prometheus format.
//
// Every [Metrics] owns its own registry, so several publishers in one process
// (or in one test binary) never collide on metric names.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hubbub"

// Metrics holds the collectors updated by the publisher.
type Metrics struct {
	registry *prometheus.Registry

	Cycles             prometheus.Counter
	NotModified        prometheus.Counter
	FetchFailures      prometheus.Counter
	FetchLatency       prometheus.Histogram
	EventsDecoded      *prometheus.CounterVec
	DecodeFailures     prometheus.Counter
	EventsDelivered    prometheus.Counter
	SubscriberFailures prometheus.Counter
	PollInterval       prometheus.Gauge
	EventDelay         prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
//
// subscribers and backlog, when non-nil, are sampled at scrape time to
// report the registered subscriptions and the events queued in their
// mailboxes.
func New(subscribers, backlog func() int) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Successful fetches of the event feed.",
		}),
		NotModified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_not_modified_total",
			Help:      "Fetches answered with 304 Not Modified.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetches of the event feed.",
		}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of feed requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_decoded_total",
			Help:      "Feed records decoded into events, by kind.",
		}, []string{"kind"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Feed records that could not be decoded.",
		}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events handed to subscribers.",
		}),
		SubscriberFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_failures_total",
			Help:      "Subscriber deliveries that returned an error or panicked.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_interval_seconds",
			Help:      "Polling interval in effect for the current cycle.",
		}),
		EventDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_delay_seconds",
			Help:      "Pause between events in the current cycle.",
		}),
	}

	cs := []prometheus.Collector{
		m.Cycles,
		m.NotModified,
		m.FetchFailures,
		m.FetchLatency,
		m.EventsDecoded,
		m.DecodeFailures,
		m.EventsDelivered,
		m.SubscriberFailures,
		m.PollInterval,
		m.EventDelay,
	}
	if subscribers != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently registered subscribers.",
		}, func() float64 { return float64(subscribers()) }))
	}
	if backlog != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mailbox_backlog",
			Help:      "Events queued for subscribers but not yet delivered.",
		}, func() float64 { return float64(backlog()) }))
	}

	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	// runtime metrics, as the default registry would have
	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return m, nil
}

// ObserveCycle records the settings and latency of one successful fetch.
func (m *Metrics) ObserveCycle(interval, delay, latency time.Duration, notModified bool) {
	m.Cycles.Inc()
	if notModified {
		m.NotModified.Inc()
	}
	m.FetchLatency.Observe(latency.Seconds())
	m.PollInterval.Set(interval.Seconds())
	m.EventDelay.Set(delay.Seconds())
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
