package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

func TestObserveOutcome(t *testing.T) {
	m := New()

	m.ObserveOutcome(model.OutcomeProcessed)
	m.ObserveOutcome(model.OutcomeProcessed)
	m.ObserveOutcome(model.OutcomeDispatchTimeout)

	assert.InDelta(t, 2, testutil.ToFloat64(m.drainOutcomes.WithLabelValues("processed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.drainOutcomes.WithLabelValues("dispatch_timeout")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.drainOutcomes.WithLabelValues("no_backlog")), 0)
}

func TestInfrastructureErrorAndIngest(t *testing.T) {
	m := New()

	m.InfrastructureError()
	m.IngestedPRs("octocat/hello-world", 3)
	m.IngestedPRs("octocat/hello-world", 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.infraErrors), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ingestedPRs.WithLabelValues("octocat/hello-world")), 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveDispatch(model.OutcomeProcessed, 1500*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mergemint_drain_outcomes_total{outcome="queue_drained"} 0`)
	assert.Contains(t, string(body), `mergemint_dispatch_duration_seconds_count{outcome="processed"} 1`)
}
