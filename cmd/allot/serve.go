// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/allot/pkg/telemetry"
	"github.com/jllopis/allot/pkg/transport/grpcserver"
	"github.com/jllopis/allot/pkg/transport/httpjson"
)

func newServeCmd(a *app) *cobra.Command {
	var healthInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP (and optionally gRPC) API",
		Long: `Serve the allot API on server.http_addr. When server.grpc_addr is set the
allot.v1.Allocator gRPC service and the gRPC health service are served too.
Sessions older than session.ttl are purged periodically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), healthInterval)
		},
	}
	cmd.Flags().DurationVar(&healthInterval, "health-interval", 15*time.Second, "How often gRPC health status is refreshed")
	return cmd
}

func (a *app) serve(ctx context.Context, healthInterval time.Duration) error {
	shutdown, err := telemetry.InitWithConfig(a.cfg.Telemetry.ServiceName, version, telemetry.Config{
		Exporter:     a.cfg.Telemetry.Exporter,
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: a.cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	rt, err := a.newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := a.watchReference(ctx, rt.source); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "allot starting", "version", version, "config", a.cfg.String())

	httpLn, grpcLn, err := listen(a.cfg.Server.HTTPAddr, a.cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	opts := []httpjson.Option{
		httpjson.WithLogger(a.logger),
		httpjson.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
	}
	if rt.metrics != nil {
		opts = append(opts, httpjson.WithMetrics(rt.metrics))
	}
	httpServer := httpjson.New(rt.svc, opts...)
	g.Go(func() error { return httpServer.Serve(ctx, httpLn) })

	if grpcLn != nil {
		grpcServer := grpcserver.New(rt.svc, a.logger)
		g.Go(func() error { return grpcServer.Serve(ctx, grpcLn, healthInterval) })
	}

	if ttl := a.cfg.Session.TTL; ttl > 0 && rt.svc.Sessions() != nil {
		g.Go(func() error {
			a.purgeSessions(ctx, rt, ttl)
			return nil
		})
	}

	return g.Wait()
}

// listen binds the HTTP address and, when grpcAddr is set, the gRPC one.
// Nothing is left open on error.
func listen(httpAddr, grpcAddr string) (httpLn, grpcLn net.Listener, err error) {
	httpLn, err = net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen http %s: %w", httpAddr, err)
	}
	if grpcAddr == "" {
		return httpLn, nil, nil
	}
	grpcLn, err = net.Listen("tcp", grpcAddr)
	if err != nil {
		httpLn.Close()
		return nil, nil, fmt.Errorf("listen grpc %s: %w", grpcAddr, err)
	}
	return httpLn, grpcLn, nil
}

// purgeSessions drops expired sessions every ttl/2 until ctx is done.
func (a *app) purgeSessions(ctx context.Context, rt *runtime, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.svc.PurgeSessions(ctx, ttl); err != nil {
				a.logger.WarnContext(ctx, "session purge failed", "error", err)
			}
		}
	}
}
