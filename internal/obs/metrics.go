package obs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric family names exposed on the scrape endpoint.
const (
	MetricTasksByQueue  = "celery_tasks_by_queue"
	MetricWorkers       = "celery_workers"
	MetricTasksByWorker = "celery_tasks_by_worker"
	MetricTasks         = "celery_tasks"
)

// FlowerMetrics groups the gauge families derived from the Flower API.
// All writes are absolute sets keyed by label values; series are created on
// first set and only ever reset to zero, never deleted.
type FlowerMetrics struct {
	TasksByQueue  *prometheus.GaugeVec
	Workers       *prometheus.GaugeVec
	TasksByWorker *prometheus.GaugeVec
	Tasks         *prometheus.GaugeVec
}

// NewFlowerMetrics registers and returns the exporter's gauge families.
func NewFlowerMetrics(reg prometheus.Registerer) *FlowerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &FlowerMetrics{
		TasksByQueue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricTasksByQueue,
			Help: "Number of messages per queue per flower instance.",
		}, []string{"flower", "queue"}),
		Workers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricWorkers,
			Help: "Number of workers per flower instance by online/offline status.",
		}, []string{"flower", "status"}),
		TasksByWorker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricTasksByWorker,
			Help: "Per-worker task counters per flower instance.",
		}, []string{"flower", "worker", "status"}),
		Tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricTasks,
			Help: "Number of tasks per queue per state per flower instance.",
		}, []string{"flower", "queue", "state"}),
	}
	m.TasksByQueue = mustRegisterGaugeVec(reg, m.TasksByQueue)
	m.Workers = mustRegisterGaugeVec(reg, m.Workers)
	m.TasksByWorker = mustRegisterGaugeVec(reg, m.TasksByWorker)
	m.Tasks = mustRegisterGaugeVec(reg, m.Tasks)
	return m
}

// ResetZero sets every label combination already registered for the named
// families back to zero. Pollers run this once at startup so that entities
// known from a previous incarnation read zero until the first fetch.
func (m *FlowerMetrics) ResetZero(g prometheus.Gatherer, names ...string) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	wanted := make(map[string]*prometheus.GaugeVec, len(names))
	for _, name := range names {
		vec := m.vecFor(name)
		if vec == nil {
			return fmt.Errorf("unknown metric family %q", name)
		}
		wanted[name] = vec
	}
	for _, family := range families {
		vec, ok := wanted[family.GetName()]
		if !ok {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := make(prometheus.Labels, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			vec.With(labels).Set(0)
		}
	}
	return nil
}

func (m *FlowerMetrics) vecFor(name string) *prometheus.GaugeVec {
	switch name {
	case MetricTasksByQueue:
		return m.TasksByQueue
	case MetricWorkers:
		return m.Workers
	case MetricTasksByWorker:
		return m.TasksByWorker
	case MetricTasks:
		return m.Tasks
	default:
		return nil
	}
}

func mustRegisterGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register gauge vec: %w", err))
	}
	return vec
}
