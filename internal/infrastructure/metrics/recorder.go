package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// Recorder implements port.MetricsRecorder with Prometheus counters held
// in a private registry
type Recorder struct {
	registry *prometheus.Registry

	decisionsTotal     *prometheus.CounterVec
	verdictsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	eventsTotal        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
}

// NewRecorder creates the approval metrics under namespace. Go runtime and
// process collectors are registered alongside.
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_decisions_total",
				Help:      "Total number of approver decisions recorded",
			},
			[]string{"decision"},
		),

		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_verdicts_total",
				Help:      "Workflow evaluations by rule kind and verdict",
			},
			[]string{"rule", "verdict"},
		),

		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expense_status_transitions_total",
				Help:      "Expense status transitions",
			},
			[]string{"from", "to"},
		),

		conflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_concurrency_conflicts_total",
				Help:      "Optimistic status writes that lost a race and were retried",
			},
		),

		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published on the dispatcher",
			},
			[]string{"type"},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_delivered_total",
				Help:      "Outbox delivery attempts by resulting status",
			},
			[]string{"status"},
		),
	}

	r.registry.MustRegister(
		r.decisionsTotal,
		r.verdictsTotal,
		r.transitionsTotal,
		r.conflictsTotal,
		r.eventsTotal,
		r.notificationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) DecisionRecorded(decision string) {
	r.decisionsTotal.WithLabelValues(decision).Inc()
}

func (r *Recorder) VerdictReached(rule, verdict string) {
	r.verdictsTotal.WithLabelValues(rule, verdict).Inc()
}

func (r *Recorder) StatusTransition(from, to string) {
	r.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (r *Recorder) ConcurrencyConflict() {
	r.conflictsTotal.Inc()
}

func (r *Recorder) EventPublished(eventType string) {
	r.eventsTotal.WithLabelValues(eventType).Inc()
}

func (r *Recorder) NotificationDelivered(status string) {
	r.notificationsTotal.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Verify interface compliance
var _ port.MetricsRecorder = (*Recorder)(nil)
