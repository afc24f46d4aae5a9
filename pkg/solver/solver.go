// SPDX-License-Identifier: Apache-2.0

// Package solver assigns agents to roles by solving a mixed-integer linear
// program. The model maximizes the squared quality of the chosen cells subject
// to exact role coverage, per-agent capacity and a cap on distinct agents.
//
// Once the set of agents in use is fixed the program is a min-cost flow, so
// the search branches only on agents. Nodes are explored best bound first and
// bounded by a Lagrangian relaxation of the coverage rows, refined with
// subgradient steps. Every call to Solve builds an independent model, so a
// Solver is safe for concurrent use.
package solver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

// Status is the outcome of a solve.
type Status int

const (
	// StatusNotSolved means the search stopped (timeout or node limit) before
	// proving optimality or infeasibility.
	StatusNotSolved Status = iota
	// StatusOptimal means the assignment is proven optimal.
	StatusOptimal
	// StatusInfeasible means no assignment satisfies the constraints.
	StatusInfeasible
	// StatusUnbounded means the relaxation is unbounded. It cannot occur for a
	// well-formed problem since every variable is binary, but LP backends report it.
	StatusUnbounded
)

// String returns the status name used on the wire.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusUnbounded:
		return "Unbounded"
	default:
		return "NotSolved"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Optimal":
		*s = StatusOptimal
	case "Infeasible":
		*s = StatusInfeasible
	case "Unbounded":
		*s = StatusUnbounded
	case "NotSolved", "Not Solved":
		*s = StatusNotSolved
	default:
		return fmt.Errorf("solver: unknown status %q", string(text))
	}
	return nil
}

// Problem is one assignment instance.
type Problem struct {
	// Quality is the R×C suitability matrix.
	Quality *matrix.Quality
	// Demand holds, per role, the exact number of agents that must cover it.
	Demand []int
	// Capacity holds, per agent, the maximum number of roles it may cover.
	Capacity []int
	// MaxAgents caps the number of distinct agents used and, through the same
	// constant, lower-bounds the total number of assigned pairs.
	MaxAgents int
}

// Validate checks shapes and ranges. Failures carry CodeInvalidInput.
func (p Problem) Validate() error {
	if p.Quality == nil {
		return errors.New(errors.CodeInvalidInput, "quality matrix is required", nil)
	}
	rows, cols := p.Quality.Dims()
	if len(p.Demand) != cols {
		return errors.Newf(errors.CodeInvalidInput,
			"role demand has %d entries, quality matrix has %d roles", len(p.Demand), cols)
	}
	if len(p.Capacity) != rows {
		return errors.Newf(errors.CodeInvalidInput,
			"agent capacity has %d entries, quality matrix has %d agents", len(p.Capacity), rows)
	}
	for j, l := range p.Demand {
		if l < 0 {
			return errors.Newf(errors.CodeInvalidInput, "role demand %d is negative (%d)", j, l)
		}
	}
	for i, c := range p.Capacity {
		if c <= 0 {
			return errors.Newf(errors.CodeInvalidInput, "agent capacity %d must be positive (%d)", i, c)
		}
	}
	if p.MaxAgents <= 0 {
		return errors.Newf(errors.CodeInvalidInput, "max agents must be positive (%d)", p.MaxAgents)
	}
	return nil
}

// Check reports the first constraint that a violates, or nil when a is a valid
// assignment for p.
func (p Problem) Check(a *matrix.Assignment) error {
	rows, cols := p.Quality.Dims()
	if r, c := a.Dims(); r != rows || c != cols {
		return fmt.Errorf("assignment is %dx%d, problem is %dx%d", r, c, rows, cols)
	}
	for j, sum := range a.ColSums() {
		if sum != p.Demand[j] {
			return fmt.Errorf("role %d covered %d times, demand is %d", j, sum, p.Demand[j])
		}
	}
	for i := 0; i < rows; i++ {
		if sum := a.RowSum(i); sum > p.Capacity[i] {
			return fmt.Errorf("agent %d covers %d roles, capacity is %d", i, sum, p.Capacity[i])
		}
	}
	if used := a.ActiveRows(); used > p.MaxAgents {
		return fmt.Errorf("%d agents used, limit is %d", used, p.MaxAgents)
	}
	if ones := a.Ones(); ones < p.MaxAgents {
		return fmt.Errorf("%d pairs assigned, minimum is %d", ones, p.MaxAgents)
	}
	return nil
}

// Objective returns Σ Q[i][j]²·T[i][j] over cells with positive quality.
func (p Problem) Objective(a *matrix.Assignment) float64 {
	rows, cols := a.Dims()
	var total float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if q := p.Quality.At(i, j); q > 0 && a.At(i, j) {
				total += q * q
			}
		}
	}
	return total
}

// Pair is an (agent, role) cell selected by the solver.
type Pair struct {
	Agent int `json:"agent"`
	Role  int `json:"role"`
}

// Result is the output of Solve. Assignment is always well-formed (R×C); it is
// all-zero when Status is Infeasible or Unbounded, and holds the best incumbent
// found (possibly all-zero) when Status is NotSolved.
type Result struct {
	Assignment *matrix.Assignment
	Status     Status
	Objective  float64
	Pairs      []Pair
	// Nodes is the number of branch-and-bound nodes explored.
	Nodes int
	// Stopped carries the reason a NotSolved search ended early.
	Stopped error
}

// Solver solves assignment problems. The zero value is not usable; use New.
type Solver struct {
	nodeLimit int
	tolerance float64
	logger    *slog.Logger
}

// Option configures a Solver.
type Option func(*Solver)

// WithNodeLimit bounds the number of branch-and-bound nodes. Zero means no limit.
func WithNodeLimit(n int) Option {
	return func(s *Solver) {
		if n >= 0 {
			s.nodeLimit = n
		}
	}
}

// WithTolerance sets the relative optimality gap below which nodes are pruned.
func WithTolerance(tol float64) Option {
	return func(s *Solver) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// WithLogger sets the logger used for search diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

const defaultTolerance = 1e-10

// New creates a solver.
func New(opts ...Option) *Solver {
	s := &Solver{
		tolerance: defaultTolerance,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Solve validates p and runs branch-and-bound until optimality or
// infeasibility is proven, ctx is done, or the node limit is reached.
// Only invalid input is returned as an error; infeasibility and early stops
// are reported through Result.Status.
func (s *Solver) Solve(ctx context.Context, p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	m := newModel(p)
	search := &branchAndBound{
		model:     m,
		tolerance: s.tolerance,
		nodeLimit: s.nodeLimit,
		logger:    s.logger,
	}
	outcome := search.run(ctx)

	rows, cols := p.Quality.Dims()
	res := Result{
		Assignment: matrix.NewAssignment(rows, cols),
		Status:     outcome.status,
		Nodes:      outcome.nodes,
		Stopped:    outcome.stopped,
	}
	if outcome.incumbent != nil && res.Status != StatusInfeasible && res.Status != StatusUnbounded {
		res.Assignment = m.assignment(outcome.incumbent)
		res.Objective = p.Objective(res.Assignment)
		res.Pairs = pairs(p.Quality, res.Assignment)
	}

	s.logger.DebugContext(ctx, "assignment solve finished",
		"status", res.Status.String(),
		"objective", res.Objective,
		"nodes", res.Nodes,
		"agents", rows,
		"roles", cols,
	)
	return res, nil
}

func pairs(q *matrix.Quality, a *matrix.Assignment) []Pair {
	rows, cols := a.Dims()
	var out []Pair
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if a.At(i, j) && q.At(i, j) > 0 {
				out = append(out, Pair{Agent: i, Role: j})
			}
		}
	}
	return out
}
