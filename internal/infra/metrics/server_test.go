package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(NewHandler(zap.NewNop()), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyzAllChecksPass(t *testing.T) {
	ok := func(context.Context) error { return nil }
	h := NewHandler(zap.NewNop(),
		ReadinessCheck{Name: "postgres", Check: ok},
		ReadinessCheck{Name: "rabbitmq", Check: ok},
	)

	rec := serve(h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	h := NewHandler(zap.NewNop(),
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "rabbitmq", Check: func(context.Context) error { return errors.New("closed") }},
	)

	rec := serve(h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "rabbitmq")
}

func TestMetricsEndpointExposesAnalysisCounters(t *testing.T) {
	AnalysesTotal.WithLabelValues("completed", "FAKE").Inc()

	rec := serve(NewHandler(zap.NewNop()), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analyses_total")
}
