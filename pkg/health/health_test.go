package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("dial tcp: connection refused") }

func ready(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", down)

	rec := httptest.NewRecorder()
	h.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
}

func TestReadiness_AllUp(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", up)
	h.RegisterCritical("redis", up)
	h.RegisterNonCritical("kafka", up)

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Len(t, resp.Checks, 3)
	assert.True(t, resp.Checks["redis"].Critical)
	assert.False(t, resp.Checks["kafka"].Critical)
}

func TestReadiness_CriticalDown(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("redis", down)
	h.RegisterNonCritical("kafka", up)

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "dial tcp: connection refused", resp.Checks["redis"].Error)
}

func TestReadiness_NonCriticalDownIsDegraded(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", up)
	h.RegisterNonCritical("kafka", down)

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadiness_ChecksRunConcurrentlyUnderTimeout(t *testing.T) {
	h := NewHandler()
	h.timeout = 50 * time.Millisecond
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.RegisterCritical("postgres", slow)
	h.RegisterCritical("redis", slow)

	start := time.Now()
	code, resp := ready(t, h)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks["postgres"].Error, "deadline exceeded")
}

func TestReadiness_NoChecks(t *testing.T) {
	code, resp := ready(t, NewHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
}
