package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flower-exporter/internal/health"
)

type stubChecker struct {
	results map[string]error
}

func (s stubChecker) PingHosts(_ context.Context, _ time.Duration) map[string]error {
	return s.results
}

func TestLive(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyAllHostsUp(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{results: map[string]error{
		"http://flower-a:5555": nil,
		"http://flower-b:5555": nil,
	}}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "ok", status["http://flower-a:5555"])
	require.Equal(t, "ok", status["http://flower-b:5555"])
}

func TestReadyHostDown(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{results: map[string]error{
		"http://flower-a:5555": nil,
		"http://flower-b:5555": errors.New("connection refused"),
	}}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "ok", status["http://flower-a:5555"])
	require.Contains(t, status["http://flower-b:5555"], "connection refused")
}

func TestReadyWithoutChecker(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
