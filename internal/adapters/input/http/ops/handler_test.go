package ops

import (
    "context"
    "errors"
    "io"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "user-events-engine/internal/metrics"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestHandler(checks map[string]HealthCheck) *Handler {
    return NewHandler(checks, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHealthz(t *testing.T) {
    handler := newTestHandler(map[string]HealthCheck{
        "mongodb": func(ctx context.Context) error { return nil },
    })

    recorder := httptest.NewRecorder()
    handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

    assert.Equal(t, http.StatusOK, recorder.Code)
    assert.Equal(t, "ok", recorder.Body.String())
}

func TestHealthzReportsFailingDependency(t *testing.T) {
    handler := newTestHandler(map[string]HealthCheck{
        "mongodb": func(ctx context.Context) error { return errors.New("no reachable servers") },
    })

    recorder := httptest.NewRecorder()
    handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

    assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
    assert.Contains(t, recorder.Body.String(), "mongodb unavailable")
}

func TestMetricsExposesRecordCounters(t *testing.T) {
    metrics.RecordOutcome("ops-test", metrics.OutcomeSucceeded)
    handler := newTestHandler(nil)

    recorder := httptest.NewRecorder()
    handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
    require.Equal(t, http.StatusOK, recorder.Code)

    body, err := io.ReadAll(recorder.Body)
    require.NoError(t, err)
    assert.True(t, strings.Contains(string(body), `user_events_engine_records_total{consumer="ops-test",outcome="succeeded"}`))
}

func TestUnknownRouteIsNotFound(t *testing.T) {
    recorder := httptest.NewRecorder()
    newTestHandler(nil).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/users", nil))
    assert.Equal(t, http.StatusNotFound, recorder.Code)
}
