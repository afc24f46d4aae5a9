// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/allot/pkg/errors"
)

// Outcome labels used by recorders.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder receives operation metrics from the service layer.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordOperation records one call of op with its outcome and latency.
	RecordOperation(ctx context.Context, op, outcome string, elapsed time.Duration)
	// RecordSolve records the solver status and branch-and-bound node count.
	RecordSolve(ctx context.Context, status string, nodes int)
	// RecordError counts a failed operation by error code.
	RecordError(ctx context.Context, op string, err error)
}

// NopRecorder discards everything.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) RecordOperation(context.Context, string, string, time.Duration) {}
func (NopRecorder) RecordSolve(context.Context, string, int)                       {}
func (NopRecorder) RecordError(context.Context, string, error)                     {}

// OTelRecorder records through the global OpenTelemetry meter provider.
type OTelRecorder struct {
	operations metric.Int64Counter
	latency    metric.Float64Histogram
	solves     metric.Int64Counter
	nodes      metric.Int64Histogram
	errors     metric.Int64Counter
}

var _ Recorder = (*OTelRecorder)(nil)

// NewOTelRecorder creates the allot instruments on the global meter.
func NewOTelRecorder() (*OTelRecorder, error) {
	meter := otel.Meter("allot/service")

	operations, err := meter.Int64Counter("allot.operations",
		metric.WithDescription("Operations by name and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("allot.operation.duration",
		metric.WithDescription("Operation latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	solves, err := meter.Int64Counter("allot.solver.results",
		metric.WithDescription("Solver results by status"))
	if err != nil {
		return nil, err
	}
	nodes, err := meter.Int64Histogram("allot.solver.nodes",
		metric.WithDescription("Branch-and-bound nodes explored per solve"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("allot.errors",
		metric.WithDescription("Failed operations by error code"))
	if err != nil {
		return nil, err
	}
	return &OTelRecorder{operations: operations, latency: latency, solves: solves, nodes: nodes, errors: errs}, nil
}

func (r *OTelRecorder) RecordOperation(ctx context.Context, op, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrOperation, op),
		attribute.String(AttrOutcome, outcome),
	)
	r.operations.Add(ctx, 1, attrs)
	r.latency.Record(ctx, elapsed.Seconds(), attrs)
}

func (r *OTelRecorder) RecordSolve(ctx context.Context, status string, nodes int) {
	r.solves.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrSolverStatus, status)))
	r.nodes.Record(ctx, int64(nodes))
}

func (r *OTelRecorder) RecordError(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	r.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOperation, op),
		attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
	))
}
