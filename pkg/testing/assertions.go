// SPDX-License-Identifier: Apache-2.0

package allottest

import (
	"slices"
	"testing"

	"github.com/jllopis/allot/pkg/matrix"
	"github.com/jllopis/allot/pkg/solver"
)

// RequireValidAssignment fails the test unless a satisfies every constraint
// of p: exact coverage, agent capacity, the agent cap and the minimum number
// of pairs.
func RequireValidAssignment(t testing.TB, p solver.Problem, a *matrix.Assignment) {
	t.Helper()
	if a == nil {
		t.Fatalf("assignment is nil")
	}
	if err := p.Check(a); err != nil {
		t.Fatalf("invalid assignment: %v", err)
	}
}

// RequireOnesConserved fails the test unless before and after hold the same
// number of assigned cells per role.
func RequireOnesConserved(t testing.TB, before, after *matrix.Assignment) {
	t.Helper()
	if before.Ones() != after.Ones() {
		t.Fatalf("assigned cells changed from %d to %d", before.Ones(), after.Ones())
	}
	if !slices.Equal(before.ColSums(), after.ColSums()) {
		t.Fatalf("role coverage changed from %v to %v", before.ColSums(), after.ColSums())
	}
}

// RequirePermutation fails the test unless out holds exactly the indices of
// in, each once.
func RequirePermutation(t testing.TB, in, out []int) {
	t.Helper()
	if len(in) != len(out) {
		t.Fatalf("permutation length %d, want %d", len(out), len(in))
	}
	a, b := slices.Clone(in), slices.Clone(out)
	slices.Sort(a)
	slices.Sort(b)
	if !slices.Equal(a, b) {
		t.Fatalf("%v is not a permutation of %v", out, in)
	}
	if len(slices.Compact(b)) != len(b) {
		t.Fatalf("%v repeats an index", out)
	}
}

// Problem builds a solver problem from a table and the request parameters.
func Problem(q *matrix.Quality, capacity, demand []int, maxAgents int) solver.Problem {
	return solver.Problem{Quality: q, Demand: demand, Capacity: capacity, MaxAgents: maxAgents}
}
