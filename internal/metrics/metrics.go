package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "convosense"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the service counters. A nil *Metrics is a no-op.
type Metrics struct {
	registry     *prometheus.Registry
	aiRequests   *prometheus.CounterVec
	messages     *prometheus.CounterVec
	previews     *prometheus.CounterVec
	translations *prometheus.CounterVec
	subscribers  prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Calls to the AI text service by operation and result.",
		}, []string{"operation", "result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended to conversation logs by send mode.",
		}, []string{"mode", "result"}),
		previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "previews_total",
			Help:      "Preview slot transitions.",
		}, []string{"outcome"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_fallbacks_total",
			Help:      "Drafts sent untranslated because translation failed.",
		}, []string{"target"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Open live feed subscriptions.",
		}),
	}

	m.registry.MustRegister(
		m.aiRequests,
		m.messages,
		m.previews,
		m.translations,
		m.subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) AIRequest(operation string, err error) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) MessageAppended(mode string, err error) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(mode, result(err)).Inc()
}

func (m *Metrics) Preview(outcome string) {
	if m == nil {
		return
	}
	m.previews.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TranslationFallback(target string) {
	if m == nil {
		return
	}
	m.translations.WithLabelValues(target).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
