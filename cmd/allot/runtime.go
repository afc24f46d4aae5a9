// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/reference"
	"github.com/jllopis/allot/pkg/resilience"
	"github.com/jllopis/allot/pkg/service"
	"github.com/jllopis/allot/pkg/session"
	"github.com/jllopis/allot/pkg/solver"
	"github.com/jllopis/allot/pkg/telemetry"
)

// runtime is a service wired from configuration together with the
// resources it owns.
type runtime struct {
	svc     *service.Service
	source  reference.Source
	metrics http.Handler
	closers []io.Closer
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return stderrors.Join(errs...)
}

// newRuntime opens the reference source, the session store and the metrics
// recorder selected by the configuration.
func (a *app) newRuntime() (*runtime, error) {
	cfg := a.cfg
	r := &runtime{}

	src, err := reference.Open(cfg.Reference.Path, reference.Format(cfg.Reference.Format),
		cfg.Reference.DefaultCapacity, a.logger)
	if err != nil {
		return nil, err
	}
	r.source = src
	if c, ok := src.(io.Closer); ok {
		r.closers = append(r.closers, c)
	}

	var store session.Store
	switch cfg.Session.Backend {
	case "memory":
		store = session.NewMemoryStore()
	case "sqlite":
		sq, err := session.OpenSQLiteStore(cfg.Session.DSN)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		store = sq
		r.closers = append(r.closers, sq)
	}

	var recorder telemetry.Recorder = telemetry.NopRecorder{}
	switch cfg.Telemetry.Metrics {
	case "otel":
		rec, err := telemetry.NewOTelRecorder()
		if err != nil {
			_ = r.Close()
			return nil, errors.New(errors.CodeInternal, "cannot create metric instruments", err)
		}
		recorder = rec
	case "prometheus":
		rec := telemetry.NewPrometheusRecorder(nil, cfg.Telemetry.ServiceName)
		recorder = rec
		r.metrics = rec.Handler()
	}

	opts := []solver.Option{solver.WithTolerance(cfg.Solver.Tolerance)}
	if cfg.Solver.NodeLimit > 0 {
		opts = append(opts, solver.WithNodeLimit(cfg.Solver.NodeLimit))
	}
	timeout := cfg.Solver.Timeout
	if timeout == 0 {
		timeout = -1
	}
	svc, err := service.New(service.Options{
		Source:        src,
		Sessions:      store,
		Recorder:      recorder,
		Logger:        a.logger,
		SolverOptions: opts,
		Timeout:       timeout,
		Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "reference",
			FailureThreshold: cfg.Reference.FailureLimit,
			Cooldown:         cfg.Reference.Cooldown,
		}),
	})
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.svc = svc
	return r, nil
}

// watchReference reloads a file-backed table on change until ctx is done.
func (a *app) watchReference(ctx context.Context, src reference.Source) error {
	fs, ok := src.(*reference.FileSource)
	if !ok || !a.cfg.Reference.Watch {
		return nil
	}
	return fs.Watch(ctx)
}
