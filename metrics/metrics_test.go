package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAggregateFailure(t *testing.T) {
	before := testutil.ToFloat64(aggregateFailures)
	RecordAggregateFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(aggregateFailures))
}

func TestRequestStarted(t *testing.T) {
	done := RequestStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(httpInFlight))
	done("GET", "/api/leaderboard", 200)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/leaderboard", "200")))
}

func TestHandlerExposesDomainCounters(t *testing.T) {
	RecordIssueTransition("accept", "In Progress")
	RecordRewardStatus("Approved", "system")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "civicbounty_issues_transitions_total")
	assert.Contains(t, rec.Body.String(), "civicbounty_ledger_reward_status_total")
}
