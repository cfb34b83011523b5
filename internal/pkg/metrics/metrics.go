package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 业务指标，每个进程创建一次
type Metrics struct {
	registry *prometheus.Registry

	BillingEvents      *prometheus.CounterVec
	SubscriptionStatus *prometheus.CounterVec
	TestsStarted       *prometheus.CounterVec
	TestsFinalized     *prometheus.CounterVec
	AnswersRecorded    prometheus.Counter
	QuotaDenied        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	UploadsCreated     prometheus.Counter
	UploadsExpired     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		BillingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_billing_events_total",
			Help: "Billing events received, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SubscriptionStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_subscription_transitions_total",
			Help: "Subscription status transitions, by target status.",
		}, []string{"status"}),
		TestsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_tests_started_total",
			Help: "Tests started, by question source.",
		}, []string{"source"}),
		TestsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_tests_finalized_total",
			Help: "Tests finalized, by mode.",
		}, []string{"mode"}),
		AnswersRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_answers_recorded_total",
			Help: "Answers recorded.",
		}),
		QuotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_quota_denied_total",
			Help: "Requests denied by the free-tier quota, by resource.",
		}, []string{"resource"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_generation_duration_seconds",
			Help:    "Latency of the content generation collaborator.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"operation", "outcome"}),
		UploadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_uploads_created_total",
			Help: "Uploads stored.",
		}),
		UploadsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_uploads_expired_total",
			Help: "Expired uploads deleted.",
		}),
	}

	reg.MustRegister(
		m.BillingEvents,
		m.SubscriptionStatus,
		m.TestsStarted,
		m.TestsFinalized,
		m.AnswersRecorded,
		m.QuotaDenied,
		m.GenerationDuration,
		m.UploadsCreated,
		m.UploadsExpired,
	)
	return m
}

// Handler /metrics 接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
