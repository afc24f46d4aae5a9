// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"context"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

func TestSolve_SquaredQualityPicksStrongPairs(t *testing.T) {
	p := Problem{
		Quality:   matrix.MustQuality([][]float64{{5, 0}, {0, 3}, {4, 4}}),
		Demand:    []int{1, 1},
		Capacity:  []int{1, 1, 1},
		MaxAgents: 2,
	}

	res, err := New().Solve(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, res.Status)
	require.Equal(t, []int{1, 1}, res.Assignment.ColSums())
	require.NoError(t, p.Check(res.Assignment))
	require.InDelta(t, 41.0, res.Objective, 1e-9)
	require.InDelta(t, p.Objective(res.Assignment), res.Objective, 1e-9)
	require.Equal(t, []Pair{{Agent: 0, Role: 0}, {Agent: 2, Role: 1}}, res.Pairs)
}

func TestSolve_DemandBeyondCapacityIsInfeasible(t *testing.T) {
	p := Problem{
		Quality:   matrix.MustQuality([][]float64{{1}, {2}}),
		Demand:    []int{5},
		Capacity:  []int{1, 1},
		MaxAgents: 2,
	}

	res, err := New().Solve(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, res.Status)
	require.Zero(t, res.Assignment.Ones())
	rows, cols := res.Assignment.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 1, cols)
	require.Empty(t, res.Pairs)
}

func TestSolve_MinimumPairsCanMakeProblemInfeasible(t *testing.T) {
	// One pair is demanded in total but a=2 requires at least two.
	p := Problem{
		Quality:   matrix.MustQuality([][]float64{{1, 1}, {1, 1}}),
		Demand:    []int{1, 0},
		Capacity:  []int{2, 2},
		MaxAgents: 2,
	}

	res, err := New().Solve(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, res.Status)
}

func TestSolve_AgentCapForcesConsolidation(t *testing.T) {
	// Each agent is best at its own role; with three agents the score would be 27.
	p := Problem{
		Quality: matrix.MustQuality([][]float64{
			{3, 1, 1},
			{1, 3, 1},
			{1, 1, 3},
		}),
		Demand:    []int{1, 1, 1},
		Capacity:  []int{3, 3, 3},
		MaxAgents: 2,
	}

	res, err := New().Solve(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, res.Status)
	require.NoError(t, p.Check(res.Assignment))
	require.Equal(t, 2, res.Assignment.ActiveRows())
	require.InDelta(t, 19.0, res.Objective, 1e-9)
}

func TestSolve_ZeroQualityCellsMayStillBeAssigned(t *testing.T) {
	p := Problem{
		Quality:   matrix.MustQuality([][]float64{{0, 2}, {0, 0}}),
		Demand:    []int{1, 1},
		Capacity:  []int{1, 1},
		MaxAgents: 2,
	}

	res, err := New().Solve(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, res.Status)
	require.NoError(t, p.Check(res.Assignment))
	require.InDelta(t, 4.0, res.Objective, 1e-9)
	// Only cells with positive quality are reported as pairs.
	require.Equal(t, []Pair{{Agent: 0, Role: 1}}, res.Pairs)
	require.Equal(t, 2, res.Assignment.Ones())
}

func TestSolve_CancelledContextYieldsNotSolved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Problem{
		Quality:   matrix.MustQuality([][]float64{{1, 2}, {2, 1}}),
		Demand:    []int{1, 1},
		Capacity:  []int{1, 1},
		MaxAgents: 2,
	}

	res, err := New().Solve(ctx, p)

	require.NoError(t, err)
	require.Equal(t, StatusNotSolved, res.Status)
	require.ErrorIs(t, res.Stopped, context.Canceled)
	require.Zero(t, res.Assignment.Ones())
}

func TestSolve_RejectsMalformedProblems(t *testing.T) {
	q := matrix.MustQuality([][]float64{{1, 2}, {3, 4}})
	tests := []struct {
		name string
		p    Problem
	}{
		{"missing quality", Problem{Demand: []int{1}, Capacity: []int{1}, MaxAgents: 1}},
		{"demand length", Problem{Quality: q, Demand: []int{1}, Capacity: []int{1, 1}, MaxAgents: 1}},
		{"capacity length", Problem{Quality: q, Demand: []int{1, 1}, Capacity: []int{1}, MaxAgents: 1}},
		{"negative demand", Problem{Quality: q, Demand: []int{-1, 1}, Capacity: []int{1, 1}, MaxAgents: 1}},
		{"zero capacity", Problem{Quality: q, Demand: []int{1, 1}, Capacity: []int{0, 1}, MaxAgents: 1}},
		{"zero max agents", Problem{Quality: q, Demand: []int{1, 1}, Capacity: []int{1, 1}, MaxAgents: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Solve(context.Background(), tt.p)
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.CodeInvalidInput))
		})
	}
}

func TestSolve_MatchesExhaustiveSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 40; n++ {
		rows, cols := 2+rng.Intn(2), 1+rng.Intn(3)
		values := make([][]float64, rows)
		for i := range values {
			values[i] = make([]float64, cols)
			for j := range values[i] {
				values[i][j] = float64(rng.Intn(6))
			}
		}
		p := Problem{
			Quality:   matrix.MustQuality(values),
			Demand:    make([]int, cols),
			Capacity:  make([]int, rows),
			MaxAgents: 1 + rng.Intn(3),
		}
		for j := range p.Demand {
			p.Demand[j] = rng.Intn(3)
		}
		for i := range p.Capacity {
			p.Capacity[i] = 1 + rng.Intn(2)
		}

		best, feasible := exhaustive(p)
		res, err := New().Solve(context.Background(), p)
		require.NoError(t, err, "instance %d", n)

		if !feasible {
			require.Equal(t, StatusInfeasible, res.Status, "instance %d", n)
			continue
		}
		require.Equal(t, StatusOptimal, res.Status, "instance %d", n)
		require.NoError(t, p.Check(res.Assignment), "instance %d", n)
		require.InDelta(t, best, res.Objective, 1e-6, "instance %d", n)
	}
}

// exhaustive enumerates every binary matrix; only usable for tiny problems.
func exhaustive(p Problem) (float64, bool) {
	rows, cols := p.Quality.Dims()
	cells := rows * cols
	best, feasible := 0.0, false
	for mask := 0; mask < 1<<cells; mask++ {
		a := matrix.NewAssignment(rows, cols)
		for k := 0; k < cells; k++ {
			if mask&(1<<k) != 0 {
				a.Set(k/cols, k%cols, true)
			}
		}
		if p.Check(a) != nil {
			continue
		}
		if obj := p.Objective(a); !feasible || obj > best {
			best, feasible = obj, true
		}
	}
	return best, feasible
}

// workoutCapacity is the per-exercise capacity vector of the production
// exercise catalogue.
var workoutCapacity = []int{3, 4, 4, 4, 5, 3, 3, 4, 5, 6, 3, 4, 4, 3, 4, 3, 4, 4, 4, 3, 4, 3, 4, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4}

// catalogueQuality draws a 33×12 table with scores 1..5 in about a third of
// the cells.
func catalogueQuality(rng *rand.Rand) *matrix.Quality {
	values := make([][]float64, len(workoutCapacity))
	for i := range values {
		values[i] = make([]float64, 12)
		for j := range values[i] {
			if rng.Intn(3) == 0 {
				values[i][j] = float64(1 + rng.Intn(5))
			}
		}
	}
	return matrix.MustQuality(values)
}

func TestSolve_CatalogueSizeFinishesWithinBudget(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		p := Problem{
			Quality:   catalogueQuality(rand.New(rand.NewSource(seed))),
			Demand:    []int{5, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 2},
			Capacity:  workoutCapacity,
			MaxAgents: 5,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		res, err := New().Solve(ctx, p)
		cancel()

		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, StatusOptimal, res.Status, "seed %d stopped: %v", seed, res.Stopped)
		require.NoError(t, p.Check(res.Assignment), "seed %d", seed)
		require.InDelta(t, p.Objective(res.Assignment), res.Objective, 1e-9)
		// Role 0 needs five distinct agents and only five may be used, so
		// every chosen agent covers it; the other roles take the best of those
		// five. Capacities never bind with three demanded roles.
		require.InDelta(t, bestFiveAgents(p), res.Objective, 1e-9, "seed %d", seed)
	}
}

func TestSolve_CatalogueSizeWithSpreadDemand(t *testing.T) {
	p := Problem{
		Quality:   catalogueQuality(rand.New(rand.NewSource(42))),
		Demand:    []int{2, 1, 1, 2, 0, 1, 1, 0, 2, 1, 0, 1},
		Capacity:  workoutCapacity,
		MaxAgents: 6,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := New().Solve(ctx, p)

	require.NoError(t, err)
	require.Equal(t, StatusOptimal, res.Status, "stopped: %v", res.Stopped)
	require.NoError(t, p.Check(res.Assignment))
	require.LessOrEqual(t, res.Assignment.ActiveRows(), 6)
}

func TestSolve_NodeLimitYieldsNotSolved(t *testing.T) {
	p := Problem{
		Quality:   catalogueQuality(rand.New(rand.NewSource(1))),
		Demand:    []int{5, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 2},
		Capacity:  workoutCapacity,
		MaxAgents: 5,
	}

	res, err := New(WithNodeLimit(1)).Solve(context.Background(), p)

	require.NoError(t, err)
	if res.Status == StatusNotSolved {
		require.ErrorIs(t, res.Stopped, ErrNodeLimit)
		return
	}
	// A root that settles the whole problem is also acceptable.
	require.Equal(t, StatusOptimal, res.Status)
	require.Equal(t, 1, res.Nodes)
}

// bestFiveAgents enumerates every five-agent subset for problems whose demand
// is {5 on role 0, 3 on role 2, 2 on role 11} and MaxAgents 5.
func bestFiveAgents(p Problem) float64 {
	rows, _ := p.Quality.Dims()
	w := func(i, j int) float64 {
		q := p.Quality.At(i, j)
		return q * q
	}
	topSum := func(set []int, j, k int) float64 {
		vals := make([]float64, 0, len(set))
		for _, i := range set {
			vals = append(vals, w(i, j))
		}
		slices.Sort(vals)
		var sum float64
		for _, v := range vals[len(vals)-k:] {
			sum += v
		}
		return sum
	}

	best := -1.0
	set := make([]int, 5)
	var pick func(from, depth int)
	pick = func(from, depth int) {
		if depth == len(set) {
			v := topSum(set, 0, 5) + topSum(set, 2, 3) + topSum(set, 11, 2)
			best = max(best, v)
			return
		}
		for i := from; i < rows; i++ {
			set[depth] = i
			pick(i+1, depth+1)
		}
	}
	pick(0, 0)
	return best
}

func TestStatus_Text(t *testing.T) {
	for _, s := range []Status{StatusOptimal, StatusInfeasible, StatusUnbounded, StatusNotSolved} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		require.Equal(t, s, back)
	}

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("Not Solved")))
	require.Equal(t, StatusNotSolved, s)
	require.Error(t, s.UnmarshalText([]byte("Solved")))
}
