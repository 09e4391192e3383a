package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Persist triggers.
const (
	TriggerAutosave = "autosave"
	TriggerFlush    = "flush"
	TriggerFinalize = "finalize"
)

// Metrics provides observability for the intake wizard engine.
// All methods are safe on a nil receiver so components can run unmetered.
type Metrics struct {
	Persists        *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	Uploads         *prometheus.CounterVec
	CoalescedEdits  prometheus.Counter
	FinalizeBlocked *prometheus.CounterVec
	LoadOutcomes    *prometheus.CounterVec
}

// New registers the wizard metrics with reg. Pass prometheus.DefaultRegisterer
// from main and a fresh registry from tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Persists: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_wizard_persists_total",
			Help: "Draft persist attempts by trigger and result",
		}, []string{"trigger", "result"}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycflow_wizard_persist_duration_seconds",
			Help:    "Duration of draft persists including attachment uploads",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_wizard_attachment_uploads_total",
			Help: "Attachment uploads by result",
		}, []string{"result"}),
		CoalescedEdits: f.NewCounter(prometheus.CounterOpts{
			Name: "kycflow_wizard_coalesced_edits_total",
			Help: "Edits absorbed into an already scheduled autosave",
		}),
		FinalizeBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_wizard_finalize_blocked_total",
			Help: "Finalize attempts rejected locally, by reason",
		}, []string{"reason"}),
		LoadOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_wizard_loads_total",
			Help: "Draft loads by outcome (found, not_found, done, failed)",
		}, []string{"outcome"}),
	}
}

// ObservePersist records one persist attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePersist(trigger string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Persists.WithLabelValues(trigger, result).Inc()
	m.PersistDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordUpload(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Uploads.WithLabelValues("error").Inc()
		return
	}
	m.Uploads.WithLabelValues("ok").Inc()
}

func (m *Metrics) IncrementCoalesced() {
	if m == nil {
		return
	}
	m.CoalescedEdits.Inc()
}

func (m *Metrics) RecordFinalizeBlocked(reason string) {
	if m == nil {
		return
	}
	m.FinalizeBlocked.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordLoad(outcome string) {
	if m == nil {
		return
	}
	m.LoadOutcomes.WithLabelValues(outcome).Inc()
}
