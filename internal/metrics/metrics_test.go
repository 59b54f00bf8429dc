package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveProvision("generated", time.Second)
	m.ObserveProvision("generated", time.Second)
	m.ObserveProvision("client", time.Millisecond)
	m.ObserveGeneration(nil, time.Second)
	m.ObserveGeneration(errors.New("boom"), time.Second)
	m.ObserveHTTP("POST", "/api/v1/provision", 200, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Provisions.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Provisions.WithLabelValues("client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/provision", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ClaimConflicts.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gbp_claim_conflicts_total 1")
}
