package poller

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/flower-exporter/internal/flower"
	"github.com/noah-isme/flower-exporter/internal/obs"
)

// NewInspectPoller builds the poller for /api/workers. It counts scheduled,
// active, reserved and revoked tasks per queue by resolving each task's
// routing key through the owning worker's active_queues table; tasks with an
// unknown routing key are skipped. Counts are accumulated across all workers
// of one response before being published.
func NewInspectPoller(client *flower.Client, metrics *obs.FlowerMetrics, gatherer prometheus.Gatherer, delays Delays, log zerolog.Logger) *Poller {
	host := client.Host()
	return &Poller{
		Host:   host,
		Kind:   "workers",
		Delays: delays,
		Log:    log,
		Reset: func() error {
			return metrics.ResetZero(gatherer, obs.MetricTasks)
		},
		Cycle: func(ctx context.Context) error {
			details, err := client.Inspect(ctx)
			if err != nil {
				return err
			}
			counts := map[string]map[string]int{}
			for _, detail := range details {
				routes := make(map[string]string, len(detail.ActiveQueues))
				for _, q := range detail.ActiveQueues {
					routes[q.RoutingKey] = q.Name
				}
				countTasks(counts, routes, "SCHEDULED", detail.Scheduled)
				countTasks(counts, routes, "ACTIVE", detail.Active)
				countTasks(counts, routes, "RESERVED", detail.Reserved)
				countTasks(counts, routes, "REVOKED", detail.Revoked)
			}
			for state, perQueue := range counts {
				for queue, n := range perQueue {
					metrics.Tasks.WithLabelValues(host, queue, state).Set(float64(n))
				}
			}
			return nil
		},
	}
}

func countTasks(counts map[string]map[string]int, routes map[string]string, state string, tasks []json.RawMessage) {
	for _, raw := range tasks {
		key, ok := flower.RoutingKey(raw)
		if !ok {
			continue
		}
		queue, ok := routes[strings.TrimSpace(key)]
		if !ok {
			continue
		}
		if counts[state] == nil {
			counts[state] = map[string]int{}
		}
		counts[state][queue]++
	}
}
