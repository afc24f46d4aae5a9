// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
	"github.com/jllopis/allot/pkg/reference"
	"github.com/jllopis/allot/pkg/resilience"
	"github.com/jllopis/allot/pkg/solver"
	"github.com/jllopis/allot/pkg/telemetry"
)

// SolveRequest asks for an optimal assignment over the reference table.
type SolveRequest struct {
	// RoleDemand holds, per role in table order, the exact number of agents
	// required.
	RoleDemand []int `json:"role_demand"`
	// Capacity optionally overrides the per-agent capacity of the table.
	Capacity []int `json:"agent_capacity,omitempty"`
	// MaxAgents caps the distinct agents used and lower-bounds the pairs.
	MaxAgents int `json:"max_agents"`
}

// Pair is a selected (agent, role) cell with its names.
type Pair struct {
	Agent     int    `json:"agent"`
	Role      int    `json:"role"`
	AgentName string `json:"agent_name"`
	RoleName  string `json:"role_name"`
}

// SolveResponse is returned only for optimal solves.
type SolveResponse struct {
	Assignment  *matrix.Assignment `json:"assignment_matrix"`
	Status      solver.Status      `json:"status"`
	Objective   float64            `json:"objective_value"`
	Pairs       []Pair             `json:"pairs"`
	SessionID   string             `json:"session_id,omitempty"`
	Fingerprint string             `json:"fingerprint"`
	Nodes       int                `json:"nodes"`
}

// Validate checks the request against a table with the given dimensions.
func (r SolveRequest) Validate(agents, roles int) error {
	if len(r.RoleDemand) == 0 {
		return errors.New(errors.CodeInvalidInput, "role_demand is required", nil)
	}
	if len(r.RoleDemand) != roles {
		return errors.Newf(errors.CodeInvalidInput,
			"role_demand has %d entries, reference table has %d roles", len(r.RoleDemand), roles).
			WithContext("field", "role_demand")
	}
	for j, l := range r.RoleDemand {
		if l < 0 {
			return errors.Newf(errors.CodeInvalidInput, "role_demand[%d] is negative", j).
				WithContext("field", "role_demand")
		}
	}
	if r.MaxAgents <= 0 {
		return errors.Newf(errors.CodeInvalidInput, "max_agents must be positive, got %d", r.MaxAgents).
			WithContext("field", "max_agents")
	}
	if r.Capacity != nil {
		if len(r.Capacity) != agents {
			return errors.Newf(errors.CodeInvalidInput,
				"agent_capacity has %d entries, reference table has %d agents", len(r.Capacity), agents).
				WithContext("field", "agent_capacity")
		}
		for i, c := range r.Capacity {
			if c <= 0 {
				return errors.Newf(errors.CodeInvalidInput, "agent_capacity[%d] must be positive", i).
					WithContext("field", "agent_capacity")
			}
		}
	}
	return nil
}

// Solve computes the assignment maximizing Σ Q²·T. Infeasible, unbounded and
// unfinished solves are reported as INFEASIBLE, INTERNAL and SOLVER_TIMEOUT
// errors; no matrix is returned with them.
func (s *Service) Solve(ctx context.Context, req SolveRequest) (resp SolveResponse, err error) {
	ctx, finish := s.start(ctx, OpSolve)
	defer func() { finish(&err) }()

	tbl, err := s.Table(ctx)
	if err != nil {
		return SolveResponse{}, err
	}
	agents, roles := tbl.Dims()
	if err := req.Validate(agents, roles); err != nil {
		return SolveResponse{}, err
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.ProblemAttributes(agents, roles, req.MaxAgents)...)

	capacity := tbl.Capacity()
	if req.Capacity != nil {
		capacity = slices.Clone(req.Capacity)
	}
	problem := solver.Problem{
		Quality:   tbl.Quality(),
		Demand:    slices.Clone(req.RoleDemand),
		Capacity:  capacity,
		MaxAgents: req.MaxAgents,
	}

	res, err := resilience.WithTimeout(ctx, resilience.TimeoutConfig{
		Duration:  s.timeout,
		Code:      errors.CodeSolverTimeout,
		Operation: OpSolve,
	}, func(ctx context.Context) (solver.Result, error) {
		return s.solver.Solve(ctx, problem)
	})
	if err != nil {
		return SolveResponse{}, err
	}
	s.recorder.RecordSolve(ctx, res.Status.String(), res.Nodes)
	span.SetAttributes(telemetry.SolveAttributes(res.Status.String(), res.Nodes, res.Objective)...)

	if err := statusError(res); err != nil {
		return SolveResponse{}, err
	}

	resp = SolveResponse{
		Assignment:  res.Assignment,
		Status:      res.Status,
		Objective:   res.Objective,
		Pairs:       namedPairs(tbl, res.Pairs),
		Fingerprint: res.Assignment.FingerprintHex(),
		Nodes:       res.Nodes,
	}
	if s.sessions != nil {
		rec, err := s.sessions.Create(ctx, res.Assignment)
		if err != nil {
			return SolveResponse{}, err
		}
		resp.SessionID = rec.ID
		span.SetAttributes(telemetry.SessionAttributes(rec.ID, rec.Fingerprint)...)
		ctx = telemetry.ContextWithSession(ctx, rec.ID)
	}

	s.logger.InfoContext(ctx, "assignment solved",
		"agents", agents,
		"roles", roles,
		"max_agents", req.MaxAgents,
		"objective", res.Objective,
		"nodes", res.Nodes,
	)
	return resp, nil
}

func statusError(res solver.Result) error {
	switch res.Status {
	case solver.StatusOptimal:
		return nil
	case solver.StatusInfeasible:
		return errors.New(errors.CodeInfeasible, "no assignment satisfies the constraints", nil).
			WithContext("nodes", res.Nodes)
	case solver.StatusUnbounded:
		return errors.New(errors.CodeInternal, "solver reported an unbounded relaxation", nil)
	default:
		return errors.New(errors.CodeSolverTimeout, "solver stopped before proving optimality", res.Stopped).
			WithContext("nodes", res.Nodes)
	}
}

func namedPairs(tbl *reference.Table, pairs []solver.Pair) []Pair {
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Pair{
			Agent:     p.Agent,
			Role:      p.Role,
			AgentName: tbl.Agent(p.Agent),
			RoleName:  tbl.Role(p.Role),
		})
	}
	return out
}
