// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jllopis/allot/pkg/errors"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
// Collectors are created and registered on first use.
type PrometheusRecorder struct {
	reg       prometheus.Registerer
	gatherer  prometheus.Gatherer
	namespace string
	once      sync.Once

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	solves     *prometheus.CounterVec
	nodes      prometheus.Histogram
	errors     *prometheus.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder on reg. A nil reg gets a fresh
// registry; an empty namespace defaults to "allot".
func NewPrometheusRecorder(reg *prometheus.Registry, namespace string) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "allot"
	}
	return &PrometheusRecorder{reg: reg, gatherer: reg, namespace: namespace}
}

func (p *PrometheusRecorder) ensureRegistered() {
	p.once.Do(func() {
		p.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "operations_total",
			Help:      "Total operations by name and outcome (ok,error).",
		}, []string{"op", "outcome"})

		p.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency in seconds by name.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms .. ~3.8s
		}, []string{"op"})

		p.solves = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "results_total",
			Help:      "Solver results by status.",
		}, []string{"status"})

		p.nodes = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "solver",
			Name:      "nodes",
			Help:      "Branch-and-bound nodes explored per solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		})

		p.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "errors_total",
			Help:      "Failed operations by name and error code.",
		}, []string{"op", "code"})

		p.reg.MustRegister(p.operations)
		p.reg.MustRegister(p.latency)
		p.reg.MustRegister(p.solves)
		p.reg.MustRegister(p.nodes)
		p.reg.MustRegister(p.errors)
	})
}

func (p *PrometheusRecorder) RecordOperation(_ context.Context, op, outcome string, elapsed time.Duration) {
	p.ensureRegistered()
	p.operations.WithLabelValues(op, outcome).Inc()
	p.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (p *PrometheusRecorder) RecordSolve(_ context.Context, status string, nodes int) {
	p.ensureRegistered()
	p.solves.WithLabelValues(status).Inc()
	p.nodes.Observe(float64(nodes))
}

func (p *PrometheusRecorder) RecordError(_ context.Context, op string, err error) {
	if err == nil {
		return
	}
	p.ensureRegistered()
	p.errors.WithLabelValues(op, string(errors.CodeOf(err))).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	p.ensureRegistered()
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
