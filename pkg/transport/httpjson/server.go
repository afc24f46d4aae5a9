// SPDX-License-Identifier: Apache-2.0

// Package httpjson exposes the allot service over HTTP with JSON bodies.
//
// Routes:
//
//	POST /api/solve      SolveRequest    -> SolveResponse
//	POST /api/reassign   ReassignRequest -> ReassignResponse
//	POST /api/respace    RespaceRequest  -> RespaceResponse
//	POST /api/gmra       legacy solve    {L, amount}
//	POST /api/shuffle    legacy reassign {T_matrix, muscle_name}
//	POST /api/spaceout   legacy respace  {parsedTMatrix, uniqueRowIndices}
//	GET  /healthz
//	GET  /metrics        when a metrics handler is configured
//
// Failures are written as application/problem+json.
package httpjson

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/health"
	"github.com/jllopis/allot/pkg/service"
)

// DefaultMaxBodyBytes limits request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Server routes HTTP requests to a service.Service.
type Server struct {
	svc          *service.Service
	metrics      http.Handler
	corsOrigins  []string
	logger       *slog.Logger
	maxBodyBytes int64
	handler      http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithCORSOrigins allows cross-origin requests from the given origins.
// "*" allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = append(s.corsOrigins, origins...) }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a Server for svc.
func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		logger:       slog.Default(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/solve", s.handleSolve)
	mux.HandleFunc("POST /api/reassign", s.handleReassign)
	mux.HandleFunc("POST /api/respace", s.handleRespace)
	mux.HandleFunc("POST /api/gmra", s.handleLegacySolve)
	mux.HandleFunc("POST /api/shuffle", s.handleLegacyReassign)
	mux.HandleFunc("POST /api/spaceout", s.handleLegacyRespace)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	s.handler = s.logRequests(s.cors(mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.InfoContext(ctx, "http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req service.SolveRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.Solve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	setETag(w, resp.Fingerprint)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req service.ReassignRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.Reassign(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	setETag(w, resp.Fingerprint)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRespace(w http.ResponseWriter, r *http.Request) {
	var req service.RespaceRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.svc.Respace(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status     health.Status   `json:"status"`
	Components []health.Result `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, results := s.svc.Health(r.Context())
	code := http.StatusOK
	if status == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Components: results})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.Newf(errors.CodeInvalidInput, "request body exceeds %d bytes", tooLarge.Limit)
		}
		var ae *errors.AllotError
		if stderrors.As(err, &ae) {
			return ae
		}
		return errors.New(errors.CodeInvalidInput, "invalid JSON body", err)
	}
	return nil
}

func setETag(w http.ResponseWriter, fingerprint string) {
	if fingerprint != "" {
		w.Header().Set("ETag", `"`+fingerprint+`"`)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type problem struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Status      int            `json:"status"`
	Detail      string         `json:"detail"`
	Code        string         `json:"code"`
	Recoverable bool           `json:"recoverable"`
	Context     map[string]any `json:"context,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	ae := errors.AsAllotError(err)
	code := ae.StatusCode
	if code == 0 {
		code = http.StatusInternalServerError
	}
	body := problem{
		Type:        "about:blank",
		Title:       http.StatusText(code),
		Status:      code,
		Detail:      ae.Message,
		Code:        string(ae.Code),
		Recoverable: ae.Recoverable,
		Context:     ae.Context,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
