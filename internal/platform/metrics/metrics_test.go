package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecordFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetch(OutcomeOK, 3, 20*time.Millisecond)
	c.RecordFetch(OutcomeOK, 2, 10*time.Millisecond)
	c.RecordFetch(OutcomeRejected, 0, time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, reg, "clusterizer_fetch_requests_total", map[string]string{"outcome": OutcomeOK}))
	assert.Equal(t, 1.0, counterValue(t, reg, "clusterizer_fetch_requests_total", map[string]string{"outcome": OutcomeRejected}))
	assert.Equal(t, 5.0, counterValue(t, reg, "clusterizer_tasks_dispatched_total", nil))
}

func TestRecordReaperRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReaperRun(OutcomeOK, 4)
	c.RecordReaperRun(OutcomeError, 0)

	assert.Equal(t, 4.0, counterValue(t, reg, "clusterizer_assignments_expired_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "clusterizer_reaper_runs_total", map[string]string{"outcome": OutcomeError}))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSubmit(OutcomeOK)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `clusterizer_results_submitted_total{outcome="ok"} 1`)
}
