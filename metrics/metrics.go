/*
Package metrics exposes payroll engine activity to Prometheus.

PURPOSE:
  Collector implements payroll.Observer. Pass it to payroll.WithObserver and
  serve Handler() on /metrics.

SERIES:
  payroll_operations_total{operation,outcome}
  payroll_operation_duration_seconds{operation}
  payroll_batch_runs_total
  payroll_batch_employees_total{result}    result = succeeded | failed
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/payroll-engine/payroll"
)

const namespace = "payroll"

// Collector records engine outcomes into its own registry.
type Collector struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	batchRuns  prometheus.Counter
	batchItems *prometheus.CounterVec
}

var _ payroll.Observer = (*Collector)(nil)

// New builds a Collector on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Payroll operations by outcome.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Payroll operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Completed batch calculations.",
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_employees_total",
			Help:      "Employees processed by batch calculations.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.operations,
		c.durations,
		c.batchRuns,
		c.batchItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) OperationCompleted(op payroll.Operation, outcome string, elapsed time.Duration) {
	c.operations.WithLabelValues(string(op), outcome).Inc()
	c.durations.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (c *Collector) BatchCompleted(_ payroll.Period, succeeded, failed int) {
	c.batchRuns.Inc()
	c.batchItems.WithLabelValues("succeeded").Add(float64(succeeded))
	c.batchItems.WithLabelValues("failed").Add(float64(failed))
}

// Registry is exposed for tests and for callers adding their own collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
