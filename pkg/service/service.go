// SPDX-License-Identifier: Apache-2.0

// Package service validates requests at the boundary and runs the assignment
// solver, the swapper and the spacer against a reference table. Every
// transport (HTTP, gRPC, MCP, CLI) goes through a Service.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/health"
	"github.com/jllopis/allot/pkg/reference"
	"github.com/jllopis/allot/pkg/resilience"
	"github.com/jllopis/allot/pkg/session"
	"github.com/jllopis/allot/pkg/solver"
	"github.com/jllopis/allot/pkg/telemetry"
)

// Operation names used in spans, metrics and logs.
const (
	OpSolve    = "solve"
	OpReassign = "reassign"
	OpRespace  = "respace"
)

// DefaultTimeout bounds a solve when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options configures a Service. Only Source is required.
type Options struct {
	Source reference.Source
	// Sessions stores solved matrices. Nil disables sessions.
	Sessions session.Store
	Recorder telemetry.Recorder
	Logger   *slog.Logger
	// SolverOptions are passed to solver.New.
	SolverOptions []solver.Option
	// Timeout bounds each solve. Negative disables the bound.
	Timeout time.Duration
	// Breaker guards reference table reads. Nil installs a default breaker.
	Breaker *resilience.CircuitBreaker
}

// Service runs allot operations. It is safe for concurrent use.
type Service struct {
	source   reference.Source
	sessions session.Store
	recorder telemetry.Recorder
	logger   *slog.Logger
	solver   *solver.Solver
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	tracer   trace.Tracer
	health   *health.Registry
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New(errors.CodeDataUnavailable, "reference source is required", nil)
	}
	s := &Service{
		source:   opts.Source,
		sessions: opts.Sessions,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		timeout:  opts.Timeout,
		breaker:  opts.Breaker,
		tracer:   otel.Tracer(telemetry.TracerName),
		health:   health.NewRegistry(),
	}
	if s.recorder == nil {
		s.recorder = telemetry.NopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeout == 0 {
		s.timeout = DefaultTimeout
	}
	if s.breaker == nil {
		s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "reference"})
	}
	s.solver = solver.New(append([]solver.Option{solver.WithLogger(s.logger)}, opts.SolverOptions...)...)

	s.health.Register("reference", health.CheckerFunc(s.checkReference))
	s.health.Register("sessions", health.CheckerFunc(s.checkSessions))
	return s, nil
}

// Table returns the current reference table, read through the circuit breaker.
func (s *Service) Table(ctx context.Context) (*reference.Table, error) {
	var tbl *reference.Table
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		t, err := s.source.Table(ctx)
		if err != nil {
			return err
		}
		if t == nil {
			return errors.New(errors.CodeDataUnavailable, "reference table is empty", nil)
		}
		tbl = t
		return nil
	})
	if err != nil {
		if !errors.Is(err, errors.CodeDataUnavailable) {
			err = errors.New(errors.CodeDataUnavailable, "reference table unavailable", err)
		}
		return nil, err
	}
	return tbl, nil
}

// Sessions returns the session store, or nil when sessions are disabled.
func (s *Service) Sessions() session.Store { return s.sessions }

// PurgeSessions drops sessions not updated within ttl.
func (s *Service) PurgeSessions(ctx context.Context, ttl time.Duration) (int, error) {
	if s.sessions == nil || ttl <= 0 {
		return 0, nil
	}
	n, err := s.sessions.Purge(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired sessions purged", "count", n, "ttl", ttl)
	}
	return n, nil
}

// Health runs every registered check and returns the overall status.
func (s *Service) Health(ctx context.Context) (health.Status, []health.Result) {
	results, status := s.health.CheckAll(ctx)
	return status, results
}

// RegisterHealthCheck adds a component check reported by Health.
func (s *Service) RegisterHealthCheck(name string, checker health.Checker) {
	s.health.Register(name, checker)
}

func (s *Service) checkReference(ctx context.Context) health.Result {
	switch s.breaker.State() {
	case resilience.StateOpen:
		return health.Result{Status: health.Unhealthy, Message: "circuit breaker open"}
	case resilience.StateHalfOpen:
		return health.Result{Status: health.Degraded, Message: "circuit breaker half-open"}
	}
	tbl, err := s.source.Table(ctx)
	if err != nil {
		return health.Result{Status: health.Unhealthy, Message: "reference table unavailable", Error: err.Error()}
	}
	if tbl == nil {
		return health.Result{Status: health.Unhealthy, Message: "reference table is empty"}
	}
	agents, roles := tbl.Dims()
	return health.Result{Status: health.Healthy, Message: fmt.Sprintf("%d agents, %d roles", agents, roles)}
}

func (s *Service) checkSessions(ctx context.Context) health.Result {
	if s.sessions == nil {
		return health.Result{Status: health.Healthy, Message: "disabled"}
	}
	_, err := s.sessions.Get(ctx, "healthz")
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return health.Result{Status: health.Unhealthy, Message: "session store unavailable", Error: err.Error()}
	}
	return health.Result{Status: health.Healthy}
}

// start opens a span for op and returns a function that closes it and
// records the outcome.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	began := time.Now()
	ctx = telemetry.ContextWithOperation(ctx, op)
	ctx, span := s.tracer.Start(ctx, "allot."+op,
		trace.WithAttributes(append(attrs, attribute.String(telemetry.AttrOperation, op))...))
	return ctx, func(errp *error) {
		elapsed := time.Since(began)
		outcome := telemetry.OutcomeOK
		if err := *errp; err != nil {
			outcome = telemetry.OutcomeError
			ae := errors.AsAllotError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, ae.Message)
			span.SetAttributes(attribute.String(telemetry.AttrErrorCode, string(ae.Code)))
			s.recorder.RecordError(ctx, op, err)
			s.logger.WarnContext(ctx, op+" failed",
				"code", string(ae.Code),
				"error", err.Error(),
				"elapsed", elapsed,
			)
		}
		span.SetAttributes(attribute.String(telemetry.AttrOutcome, outcome))
		s.recorder.RecordOperation(ctx, op, outcome, elapsed)
		span.End()
	}
}
