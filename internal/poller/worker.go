package poller

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/flower-exporter/internal/flower"
	"github.com/noah-isme/flower-exporter/internal/obs"
)

// NewWorkerPoller builds the poller for /dashboard?json=1. Every worker in
// the response yields seven counter gauges keyed by counter name, and the
// whole response yields the online/offline worker counts.
func NewWorkerPoller(client *flower.Client, metrics *obs.FlowerMetrics, gatherer prometheus.Gatherer, delays Delays, log zerolog.Logger) *Poller {
	host := client.Host()
	return &Poller{
		Host:   host,
		Kind:   "dashboard",
		Delays: delays,
		Log:    log,
		Reset: func() error {
			return metrics.ResetZero(gatherer, obs.MetricWorkers, obs.MetricTasksByWorker)
		},
		Cycle: func(ctx context.Context) error {
			workers, err := client.Dashboard(ctx)
			if err != nil {
				return err
			}
			online, offline := 0, 0
			for _, w := range workers {
				if w.Online() {
					online++
				} else {
					offline++
				}
				for status, value := range w.Counters() {
					metrics.TasksByWorker.WithLabelValues(host, w.Hostname, status).Set(float64(value))
				}
			}
			metrics.Workers.WithLabelValues(host, "online").Set(float64(online))
			metrics.Workers.WithLabelValues(host, "offline").Set(float64(offline))
			return nil
		},
	}
}
