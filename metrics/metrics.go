package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records verification orchestration metrics. The orchestrator and
// webhook receiver call into it; a nil *Collector is safe to use so tests can
// skip metrics wiring.
type Collector struct {
	registry *prometheus.Registry

	verificationsStarted *prometheus.CounterVec
	verificationsDone    *prometheus.CounterVec
	pollAttempts         prometheus.Histogram
	orchestrationSeconds prometheus.Histogram
	webhookEvents        *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on a fresh
// registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		verificationsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "valid8_verifications_started_total",
			Help: "Verification sessions created, by provider.",
		}, []string{"provider"}),
		verificationsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "valid8_verifications_finished_total",
			Help: "Verification sessions reaching a terminal state, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "valid8_poll_attempts",
			Help:    "Status poll attempts used per verification attempt.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
		}),
		orchestrationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "valid8_orchestration_duration_seconds",
			Help:    "Wall time of the submit-and-poll flow.",
			Buckets: prometheus.DefBuckets,
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "valid8_webhook_events_total",
			Help: "Webhook deliveries received, by provider.",
		}, []string{"provider"}),
	}

	registry.MustRegister(
		c.verificationsStarted,
		c.verificationsDone,
		c.pollAttempts,
		c.orchestrationSeconds,
		c.webhookEvents,
	)

	return c
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordVerificationStarted(provider string) {
	if c == nil {
		return
	}
	c.verificationsStarted.WithLabelValues(provider).Inc()
}

func (c *Collector) RecordVerificationFinished(provider, outcome string) {
	if c == nil {
		return
	}
	c.verificationsDone.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) RecordPollAttempts(attempts int) {
	if c == nil {
		return
	}
	c.pollAttempts.Observe(float64(attempts))
}

func (c *Collector) RecordOrchestrationDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.orchestrationSeconds.Observe(d.Seconds())
}

func (c *Collector) RecordWebhookEvent(provider string) {
	if c == nil {
		return
	}
	c.webhookEvents.WithLabelValues(provider).Inc()
}
