// Package metrics provides observability for the game server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uplink"

// Collector gathers performance metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	ticks                prometheus.Counter
	tickDuration         prometheus.Histogram
	activeSessions       prometheus.Gauge
	sessionFailures      prometheus.Counter
	eventsProcessed      *prometheus.CounterVec
	notificationsSent    prometheus.Counter
	notificationsDropped prometheus.Counter
	wsConnections        prometheus.Gauge
	wsMessagesIn         prometheus.Counter
	wsRateLimited        prometheus.Counter
}

// NewCollector creates the collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Number of simulation ticks committed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time spent in one tick, commit included.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .2, .5},
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Sessions advanced in the last tick.",
		}),
		sessionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_tick_failures_total",
			Help: "Per-session tick passes rolled back after an error.",
		}),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scheduled_events_processed_total",
			Help: "Scheduled consequences processed, by kind.",
		}, []string{"kind"}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_sent_total",
			Help: "Push notifications handed to the push channel.",
		}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_dropped_total",
			Help: "Push notifications that could not be delivered.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_connections",
			Help: "Open push channel connections.",
		}),
		wsMessagesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "websocket_messages_in_total",
			Help: "Commands received on push channels.",
		}),
		wsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "websocket_rate_limited_total",
			Help: "Commands rejected by the per-client rate limiter.",
		}),
	}

	reg.MustRegister(
		c.ticks, c.tickDuration, c.activeSessions, c.sessionFailures, c.eventsProcessed,
		c.notificationsSent, c.notificationsDropped, c.wsConnections, c.wsMessagesIn, c.wsRateLimited,
	)
	return c
}

// RecordTick records one committed tick.
func (c *Collector) RecordTick(latency time.Duration, sessions int) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.tickDuration.Observe(latency.Seconds())
	c.activeSessions.Set(float64(sessions))
}

// RecordSessionFailure counts a rolled back session pass.
func (c *Collector) RecordSessionFailure() {
	if c == nil {
		return
	}
	c.sessionFailures.Inc()
}

// RecordEvent counts a processed scheduled event.
func (c *Collector) RecordEvent(kind string) {
	if c == nil {
		return
	}
	c.eventsProcessed.WithLabelValues(kind).Inc()
}

// RecordNotifications counts a flushed outbox.
func (c *Collector) RecordNotifications(sent, dropped int) {
	if c == nil {
		return
	}
	c.notificationsSent.Add(float64(sent))
	c.notificationsDropped.Add(float64(dropped))
}

// RecordWSConnection tracks websocket connection count changes.
func (c *Collector) RecordWSConnection(delta int) {
	if c == nil {
		return
	}
	c.wsConnections.Add(float64(delta))
}

// RecordWSMessage counts an inbound command; limited marks a rejected one.
func (c *Collector) RecordWSMessage(limited bool) {
	if c == nil {
		return
	}
	c.wsMessagesIn.Inc()
	if limited {
		c.wsRateLimited.Inc()
	}
}
