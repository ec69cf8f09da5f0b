package poller

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/flower-exporter/internal/flower"
	"github.com/noah-isme/flower-exporter/internal/obs"
)

// NewQueuePoller builds the poller for /api/queues/length. Each queue in the
// response gets one absolute gauge set; queues absent from a response keep
// their previous value until the next process start.
func NewQueuePoller(client *flower.Client, metrics *obs.FlowerMetrics, gatherer prometheus.Gatherer, delays Delays, log zerolog.Logger) *Poller {
	host := client.Host()
	return &Poller{
		Host:   host,
		Kind:   "queues",
		Delays: delays,
		Log:    log,
		Reset: func() error {
			return metrics.ResetZero(gatherer, obs.MetricTasksByQueue)
		},
		Cycle: func(ctx context.Context) error {
			queues, err := client.QueueLengths(ctx)
			if err != nil {
				return err
			}
			for _, q := range queues {
				metrics.TasksByQueue.WithLabelValues(host, q.Name).Set(float64(q.Messages))
			}
			return nil
		},
	}
}
