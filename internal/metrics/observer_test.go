package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.ObserveUoW("ledger.transfer", "committed", 15*time.Millisecond)
	m.ObserveUoW("ledger.transfer", "retry_exhausted", time.Second)
	m.ObserveRetry("ledger.transfer")
	m.ObserveRetry("ledger.transfer")
	m.ObserveAuditEvent("critical")
	m.ObserveAlertFailure()
	m.ObserveRateLookup("hit")
	m.ObserveRateLookup("")

	assert.Equal(t, 1.0, counterValue(t, m.uowTotal.WithLabelValues("ledger.transfer", "committed")))
	assert.Equal(t, 2.0, counterValue(t, m.retries.WithLabelValues("ledger.transfer")))
	assert.Equal(t, 1.0, counterValue(t, m.auditEvents.WithLabelValues("critical")))
	assert.Equal(t, 1.0, counterValue(t, m.alertFailures))
	assert.Equal(t, 1.0, counterValue(t, m.rateLookups.WithLabelValues("unknown")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "ledger_uow_duration_seconds" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestLedgerMetrics_NilRegistererIsNoop(t *testing.T) {
	m := NewLedgerMetrics(nil)
	assert.NotPanics(t, func() {
		m.ObserveUoW("x", "committed", time.Millisecond)
		m.ObserveRetry("x")
		m.ObserveAuditEvent("high")
		m.ObserveAlertFailure()
		m.ObserveRateLookup("miss")
	})
}

func TestCronJobMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.Observe("audit_purge", time.Second, nil)
	m.Observe("audit_purge", time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, counterValue(t, m.success.WithLabelValues("audit_purge")))
	assert.Equal(t, 1.0, counterValue(t, m.failure.WithLabelValues("audit_purge")))
}

func TestHTTPMetrics_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/accounts/:accountID", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", Handler(reg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 1.0, counterValue(t, m.requests.WithLabelValues("/accounts/:accountID", http.MethodGet, "204")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}
