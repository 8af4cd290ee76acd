package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "push_notify"

// Outcome labels of a handled push.
const (
	OutcomeMalformed      = "malformed"
	OutcomeKeyAgreement   = "key_agreement"
	OutcomeAuthentication = "authentication"
	OutcomeParseError     = "parse_error"
	OutcomeRich           = "rich"
	OutcomeAttachment     = "attachment"
	OutcomePlain          = "plain"
	OutcomeTimeout        = "timeout"
	OutcomePanic          = "panic"
)

// Metrics holds Prometheus metrics for the push pipeline
type Metrics struct {
	Invocations      *prometheus.CounterVec
	Duration         prometheus.Histogram
	InFlight         prometheus.Gauge
	DeviceDeliveries *prometheus.CounterVec
}

// NewMetrics registers the pipeline metrics on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Handled pushes by final outcome",
			},
			[]string{"outcome"},
		),
		Duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handle_duration_seconds",
				Help:      "Time from receiving a push to delivering its content",
				Buckets:   prometheus.DefBuckets,
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "invocations_in_flight",
				Help:      "Pushes currently being handled",
			},
		),
		DeviceDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_deliveries_total",
				Help:      "Delivered content forwarded to subscribed devices",
			},
			[]string{"status"},
		),
	}
}

// Observe records one finished invocation. A nil receiver is a no-op so the
// pipeline runs without metrics.
func (m *Metrics) Observe(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(outcome).Inc()
	m.Duration.Observe(took.Seconds())
}

func (m *Metrics) Begin() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

func (m *Metrics) DeviceDelivery(status string) {
	if m == nil {
		return
	}
	m.DeviceDeliveries.WithLabelValues(status).Inc()
}
