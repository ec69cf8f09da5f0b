// Package flower is a minimal client for the Flower (Celery monitoring) HTTP API.
package flower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrBadPayload marks responses whose body could not be decoded into the
// expected shape. Callers treat it as a terminal fault, unlike connectivity
// and status errors which are retried.
var ErrBadPayload = errors.New("malformed payload")

// StatusError reports a non-2xx response from the flower API.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with HTTP %d", e.URL, e.Code)
}

// Client talks to one flower instance. The base URL is immutable and doubles
// as the "flower" label value on every metric derived from it.
type Client struct {
	host string
	hc   *http.Client
}

// NewClient returns a client for the given base URL. Every request is bounded
// by the timeout so a hung upstream cannot stall a poller indefinitely.
func NewClient(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		host: strings.TrimRight(host, "/"),
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Host returns the base URL the client was built with.
func (c *Client) Host() string {
	return c.host
}

// QueueInfo is one entry of the queue-length endpoint.
type QueueInfo struct {
	Name     string `json:"name"`
	Messages int64  `json:"messages"`
}

// WorkerInfo is one entry of the dashboard endpoint. All counters are
// optional and default to zero; hostname and status are required.
type WorkerInfo struct {
	Hostname      string `json:"hostname"`
	Status        *bool  `json:"status"`
	TaskReceived  int64  `json:"task-received"`
	TaskStarted   int64  `json:"task-started"`
	TaskFailed    int64  `json:"task-failed"`
	TaskRetried   int64  `json:"task-retried"`
	TaskSucceeded int64  `json:"task-succeeded"`
	Processed     int64  `json:"processed"`
	Active        int64  `json:"active"`
}

// Online reports whether the worker's status field is truthy.
func (w WorkerInfo) Online() bool {
	return w.Status != nil && *w.Status
}

// Counters maps the per-worker status label values to their counts.
func (w WorkerInfo) Counters() map[string]int64 {
	return map[string]int64{
		"received":  w.TaskReceived,
		"started":   w.TaskStarted,
		"failed":    w.TaskFailed,
		"retried":   w.TaskRetried,
		"succeeded": w.TaskSucceeded,
		"processed": w.Processed,
		"active":    w.Active,
	}
}

// ActiveQueue is one row of a worker's routing table.
type ActiveQueue struct {
	Name       string `json:"name"`
	RoutingKey string `json:"routing_key"`
}

// WorkerDetail is one entry of the workers inspection endpoint. Task lists
// are kept raw because their element shape varies between Celery versions;
// RoutingKey extracts what the exporter needs.
type WorkerDetail struct {
	ActiveQueues []ActiveQueue     `json:"active_queues"`
	Scheduled    []json.RawMessage `json:"scheduled"`
	Active       []json.RawMessage `json:"active"`
	Reserved     []json.RawMessage `json:"reserved"`
	Revoked      []json.RawMessage `json:"revoked"`
}

// RoutingKey digs the routing key out of a raw task entry, looking at
// delivery_info first and request.delivery_info second.
func RoutingKey(raw json.RawMessage) (string, bool) {
	var task struct {
		DeliveryInfo *deliveryInfo `json:"delivery_info"`
		Request      *struct {
			DeliveryInfo *deliveryInfo `json:"delivery_info"`
		} `json:"request"`
	}
	if err := json.Unmarshal(raw, &task); err != nil {
		return "", false
	}
	if task.DeliveryInfo != nil {
		return task.DeliveryInfo.RoutingKey, true
	}
	if task.Request != nil && task.Request.DeliveryInfo != nil {
		return task.Request.DeliveryInfo.RoutingKey, true
	}
	return "", false
}

type deliveryInfo struct {
	RoutingKey string `json:"routing_key"`
}

// QueueLengths fetches the per-queue message counts. An absent active_queues
// key is tolerated and yields an empty slice.
func (c *Client) QueueLengths(ctx context.Context) ([]QueueInfo, error) {
	var payload struct {
		ActiveQueues []QueueInfo `json:"active_queues"`
	}
	if err := c.getJSON(ctx, "/api/queues/length", &payload); err != nil {
		return nil, err
	}
	return payload.ActiveQueues, nil
}

// Dashboard fetches the per-worker counters. An absent data key is tolerated
// and yields an empty slice; a worker entry without hostname or status is a
// payload fault.
func (c *Client) Dashboard(ctx context.Context) ([]WorkerInfo, error) {
	var payload struct {
		Data []WorkerInfo `json:"data"`
	}
	if err := c.getJSON(ctx, "/dashboard?json=1", &payload); err != nil {
		return nil, err
	}
	for _, worker := range payload.Data {
		if strings.TrimSpace(worker.Hostname) == "" {
			return nil, fmt.Errorf("dashboard entry without hostname: %w", ErrBadPayload)
		}
		if worker.Status == nil {
			return nil, fmt.Errorf("worker %q without status: %w", worker.Hostname, ErrBadPayload)
		}
	}
	return payload.Data, nil
}

// Inspect fetches the full worker inspection map keyed by worker name.
func (c *Client) Inspect(ctx context.Context) (map[string]WorkerDetail, error) {
	payload := map[string]WorkerDetail{}
	if err := c.getJSON(ctx, "/api/workers", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Ping probes the instance for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	url := c.host + "/api/queues/length"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	url := c.host + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", url, err, ErrBadPayload)
	}
	return nil
}
