package flower_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flower-exporter/internal/flower"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueueLengths(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/api/queues/length": `{"active_queues": [{"name": "default", "messages": 3}, {"name": "mail", "messages": 0}]}`,
	})
	client := flower.NewClient(srv.URL, time.Second)

	queues, err := client.QueueLengths(context.Background())
	require.NoError(t, err)
	require.Equal(t, []flower.QueueInfo{
		{Name: "default", Messages: 3},
		{Name: "mail", Messages: 0},
	}, queues)
}

func TestQueueLengthsAbsentKey(t *testing.T) {
	srv := newServer(t, map[string]string{"/api/queues/length": `{}`})
	client := flower.NewClient(srv.URL, time.Second)

	queues, err := client.QueueLengths(context.Background())
	require.NoError(t, err)
	require.Empty(t, queues)
}

func TestDashboardCountersDefaultToZero(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/dashboard?json=1": `{"data": [{"hostname": "w1", "status": true, "task-succeeded": 5}]}`,
	})
	client := flower.NewClient(srv.URL, time.Second)

	workers, err := client.Dashboard(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 1)
	require.True(t, workers[0].Online())
	counters := workers[0].Counters()
	require.Equal(t, int64(5), counters["succeeded"])
	for _, status := range []string{"received", "started", "failed", "retried", "processed", "active"} {
		require.Zero(t, counters[status], status)
	}
}

func TestDashboardMissingStatusIsPayloadFault(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/dashboard?json=1": `{"data": [{"hostname": "w1"}]}`,
	})
	client := flower.NewClient(srv.URL, time.Second)

	_, err := client.Dashboard(context.Background())
	require.ErrorIs(t, err, flower.ErrBadPayload)
}

func TestMalformedJSONIsPayloadFault(t *testing.T) {
	srv := newServer(t, map[string]string{"/api/queues/length": `{not json`})
	client := flower.NewClient(srv.URL, time.Second)

	_, err := client.QueueLengths(context.Background())
	require.ErrorIs(t, err, flower.ErrBadPayload)
}

func TestNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := flower.NewClient(srv.URL, time.Second)

	_, err := client.QueueLengths(context.Background())
	var statusErr *flower.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
	require.NotErrorIs(t, err, flower.ErrBadPayload)
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	client := flower.NewClient(srv.URL, time.Second)

	_, err := client.QueueLengths(context.Background())
	require.Error(t, err)
	var statusErr *flower.StatusError
	require.False(t, errors.As(err, &statusErr))
	require.NotErrorIs(t, err, flower.ErrBadPayload)
}

func TestInspect(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/api/workers": `{
			"celery@w1": {
				"active_queues": [{"name": "default", "routing_key": "default"}],
				"active": [{"delivery_info": {"routing_key": "default"}}],
				"scheduled": [],
				"reserved": [{"request": {"delivery_info": {"routing_key": "default"}}}]
			}
		}`,
	})
	client := flower.NewClient(srv.URL, time.Second)

	details, err := client.Inspect(context.Background())
	require.NoError(t, err)
	require.Contains(t, details, "celery@w1")
	detail := details["celery@w1"]
	require.Len(t, detail.Active, 1)
	require.Len(t, detail.Reserved, 1)

	key, ok := flower.RoutingKey(detail.Active[0])
	require.True(t, ok)
	require.Equal(t, "default", key)

	key, ok = flower.RoutingKey(detail.Reserved[0])
	require.True(t, ok)
	require.Equal(t, "default", key)
}

func TestRoutingKeyUnknownShape(t *testing.T) {
	_, ok := flower.RoutingKey(json.RawMessage(`"just-a-task-id"`))
	require.False(t, ok)

	_, ok = flower.RoutingKey(json.RawMessage(`{"name": "tasks.add"}`))
	require.False(t, ok)
}

func TestPing(t *testing.T) {
	srv := newServer(t, map[string]string{"/api/queues/length": `{}`})
	client := flower.NewClient(srv.URL, time.Second)
	require.NoError(t, client.Ping(context.Background()))

	srv.Close()
	require.Error(t, client.Ping(context.Background()))
}

func TestHostTrimsTrailingSlash(t *testing.T) {
	client := flower.NewClient("http://flower:5555/", time.Second)
	require.Equal(t, "http://flower:5555", client.Host())
}
