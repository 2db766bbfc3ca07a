package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	m := New("")
	assert.NotNil(t, m.Registry())
	assert.NotNil(t, m.evaluationsTotal)
	assert.NotNil(t, m.reloadsTotal)
}

func TestObserveEvaluation(t *testing.T) {
	t.Parallel()

	m := New("test")
	m.ObserveEvaluation("grpc", "matched", time.Millisecond)
	m.ObserveEvaluation("grpc", "matched", time.Millisecond)
	m.ObserveEvaluation("http", "no_match", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.evaluationsTotal.WithLabelValues("grpc", "matched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluationsTotal.WithLabelValues("http", "no_match")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.evaluationDuration))
}

func TestObserveReload(t *testing.T) {
	t.Parallel()

	m := New("test")
	m.ObserveReload(nil, 5, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloadsTotal.WithLabelValues(ReloadSuccess)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.policiesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.policyWarnings))

	m.ObserveReload(errors.New("boom"), 0, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloadsTotal.WithLabelValues(ReloadFailure)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.policiesLoaded), "failed reload must not clear the gauge")
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New("test")
	m.RecordRateLimitHit("http")
	m.RecordHTTPRequest(http.MethodPost, "/v1/evaluate", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "test_rate_limit_hits_total"))
	assert.True(t, strings.Contains(text, `test_http_requests_total{method="POST",route="/v1/evaluate",status="200"} 1`))
	assert.True(t, strings.Contains(text, "test_policy_reloads_total"))
}
