package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.TestsFinalized.WithLabelValues("abandon").Inc()
	m.BillingEvents.WithLabelValues("checkout_completed", "applied").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TestsFinalized.WithLabelValues("abandon")))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `exam_tests_finalized_total{mode="abandon"} 1`)
	assert.Contains(t, string(body), `exam_billing_events_total{kind="checkout_completed",outcome="applied"} 2`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
