package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder("expense")

	r.DecisionRecorded("approved")
	r.DecisionRecorded("approved")
	r.DecisionRecorded("rejected")
	r.VerdictReached("percentage", "approved")
	r.StatusTransition("pending", "approved")
	r.ConcurrencyConflict()
	r.EventPublished("expense_submitted")
	r.NotificationDelivered("SENT")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisionsTotal.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisionsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verdictsTotal.WithLabelValues("percentage", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionsTotal.WithLabelValues("pending", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.conflictsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsTotal.WithLabelValues("expense_submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notificationsTotal.WithLabelValues("SENT")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder("expense")
	r.ConcurrencyConflict()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "expense_approval_concurrency_conflicts_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRecorders_AreIndependent(t *testing.T) {
	a := NewRecorder("expense")
	b := NewRecorder("expense")

	a.ConcurrencyConflict()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.conflictsTotal))
}
