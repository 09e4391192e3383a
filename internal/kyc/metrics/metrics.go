package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the server side of draft intake. A nil *Metrics records
// nothing.
type Metrics struct {
	DraftSaves   *prometheus.CounterVec
	Reviews      *prometheus.CounterVec
	Uploads      *prometheus.CounterVec
	UploadBytes  prometheus.Histogram
	CacheLookups *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DraftSaves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_draft_saves_total",
			Help: "Accepted draft saves by role and resulting status",
		}, []string{"role", "status"}),
		Reviews: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_draft_reviews_total",
			Help: "Reviewer decisions by outcome",
		}, []string{"status"}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_uploads_total",
			Help: "Attachment uploads by result",
		}, []string{"result"}),
		UploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycflow_upload_bytes",
			Help:    "Size of accepted attachment uploads",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_draft_cache_lookups_total",
			Help: "Draft cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordSave(role, status string) {
	if m == nil {
		return
	}
	m.DraftSaves.WithLabelValues(role, status).Inc()
}

func (m *Metrics) RecordReview(status string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(status).Inc()
}

// RecordUpload counts an upload attempt; size is observed only on success.
func (m *Metrics) RecordUpload(size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Uploads.WithLabelValues("error").Inc()
		return
	}
	m.Uploads.WithLabelValues("ok").Inc()
	m.UploadBytes.Observe(float64(size))
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
