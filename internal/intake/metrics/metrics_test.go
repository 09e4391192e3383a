package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePersist(TriggerAutosave, time.Now(), nil)
	m.ObservePersist(TriggerAutosave, time.Now(), errors.New("offline"))
	m.RecordUpload(nil)
	m.RecordFinalizeBlocked("incomplete")
	m.IncrementCoalesced()
	m.RecordLoad("not_found")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Persists.WithLabelValues(TriggerAutosave, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Persists.WithLabelValues(TriggerAutosave, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FinalizeBlocked.WithLabelValues("incomplete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CoalescedEdits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadOutcomes.WithLabelValues("not_found")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePersist(TriggerFlush, time.Now(), nil)
		m.RecordUpload(nil)
		m.IncrementCoalesced()
		m.RecordFinalizeBlocked("attachments")
		m.RecordLoad("failed")
	})
}
