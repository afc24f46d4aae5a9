// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/jllopis/allot/pkg/matrix"
)

// Decision state of an agent inside a search node.
type agentState int8

const (
	agentFree agentState = iota
	agentIn
	agentOut
)

// model holds the data shared by every node of one solve. Roles with zero
// demand never receive an agent, so only active roles are modelled.
type model struct {
	rows, cols int
	// active lists the roles with positive demand.
	active   []int
	weight   [][]float64 // Q² for positive quality, 0 otherwise; indexed [agent][role]
	demand   []int
	capacity []int
	total    int
	limit    int
	// integral is set when every weight is a whole number, so every
	// objective value is too and bounds can be rounded down.
	integral bool
}

func newModel(p Problem) *model {
	rows, cols := p.Quality.Dims()
	m := &model{
		rows:     rows,
		cols:     cols,
		weight:   make([][]float64, rows),
		demand:   p.Demand,
		capacity: p.Capacity,
		limit:    p.MaxAgents,
		integral: true,
	}
	for j, l := range p.Demand {
		if l > 0 {
			m.active = append(m.active, j)
			m.total += l
		}
	}
	for i := range m.weight {
		m.weight[i] = make([]float64, cols)
		for j := range m.weight[i] {
			if q := p.Quality.At(i, j); q > 0 {
				m.weight[i][j] = q * q
			}
			if m.weight[i][j] != math.Trunc(m.weight[i][j]) {
				m.integral = false
			}
		}
	}
	return m
}

// tighten rounds a bound down to the next reachable objective value.
func (m *model) tighten(bound float64) float64 {
	if !m.integral || math.IsInf(bound, 0) {
		return bound
	}
	return math.Floor(bound + 1e-6)
}

// plan is an integral assignment: the roles covered by each agent.
type plan struct {
	roles  [][]int
	weight float64
}

func (p *plan) agents() int {
	n := 0
	for _, r := range p.roles {
		if len(r) > 0 {
			n++
		}
	}
	return n
}

func (m *model) assignment(p *plan) *matrix.Assignment {
	a := matrix.NewAssignment(m.rows, m.cols)
	for i, roles := range p.roles {
		for _, j := range roles {
			a.Set(i, j, true)
		}
	}
	return a
}

// route returns the heaviest assignment that covers every demand exactly
// using only the agents in use, each within its capacity. It reports false
// when the demand cannot be covered. Ties resolve towards lower agent indices.
func (m *model) route(use []bool) (*plan, bool) {
	src, sink := 0, m.rows+len(m.active)+1
	g := newNetwork(sink + 1)
	for i := 0; i < m.rows; i++ {
		if !use[i] {
			continue
		}
		g.addArc(src, 1+i, m.capacity[i], 0)
		for k, j := range m.active {
			g.addArc(1+i, 1+m.rows+k, 1, -m.weight[i][j])
		}
	}
	for k, j := range m.active {
		g.addArc(1+m.rows+k, sink, m.demand[j], 0)
	}
	if g.minCostFlow(src, sink, m.total) < m.total {
		return nil, false
	}

	p := &plan{roles: make([][]int, m.rows)}
	for i := 0; i < m.rows; i++ {
		for _, e := range g.arcs[1+i] {
			if e.to <= m.rows || e.cap != 0 {
				continue
			}
			j := m.active[e.to-1-m.rows]
			p.roles[i] = append(p.roles[i], j)
			p.weight += m.weight[i][j]
		}
		slices.Sort(p.roles[i])
	}
	return p, true
}

// dual is the Lagrangian relaxation of the coverage rows: with a price mu
// per active role, every agent independently takes its most profitable roles
// up to capacity, and the best agents are kept up to the agent limit.
//
// For any prices the value
//
//	Σ_j mu_j·L_j + Σ_{i∈in} v_i + Σ top-(limit-|in|) free v_i
//
// bounds the objective of every assignment that respects the node's
// decisions, where v_i is the sum of agent i's positive reduced weights.
type dual struct {
	value  float64
	chosen []int     // free agents kept by the relaxation, best first
	worth  []float64 // v_i per agent
	// gap holds L_j - Σ_i x_ij per active role; all zero when the relaxed
	// assignment covers the demand exactly.
	gap []float64
}

func (m *model) relax(states []agentState, mu []float64) dual {
	d := dual{
		worth: make([]float64, m.rows),
		gap:   make([]float64, len(m.active)),
	}
	for k, j := range m.active {
		d.value += mu[k] * float64(m.demand[j])
		d.gap[k] = float64(m.demand[j])
	}

	budget := m.limit
	var free []int
	reduced := make([]float64, len(m.active))
	order := make([]int, len(m.active))
	picks := make([][]int, m.rows)
	for i := 0; i < m.rows; i++ {
		if states[i] == agentOut {
			continue
		}
		for k, j := range m.active {
			reduced[k] = m.weight[i][j] - mu[k]
			order[k] = k
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case reduced[a] > reduced[b]:
				return -1
			case reduced[a] < reduced[b]:
				return 1
			}
			return 0
		})
		for _, k := range order[:min(m.capacity[i], len(order))] {
			if reduced[k] <= 0 {
				break
			}
			d.worth[i] += reduced[k]
			picks[i] = append(picks[i], k)
		}
		if states[i] == agentIn {
			budget--
			d.value += d.worth[i]
			for _, k := range picks[i] {
				d.gap[k]--
			}
			continue
		}
		free = append(free, i)
	}

	slices.SortStableFunc(free, func(a, b int) int {
		switch {
		case d.worth[a] > d.worth[b]:
			return -1
		case d.worth[a] < d.worth[b]:
			return 1
		}
		return 0
	})
	d.chosen = free[:max(0, min(budget, len(free)))]
	for _, i := range d.chosen {
		d.value += d.worth[i]
		for _, k := range picks[i] {
			d.gap[k]--
		}
	}
	return d
}

// bound minimizes the Lagrangian dual by subgradient descent with Polyak
// steps, starting from mu, which it updates in place to the best prices found.
// target is the best known objective, or NaN when there is none. The returned
// dual is the tightest one seen; every one of them is a valid bound. Each
// distinct set of kept agents is passed to visit so callers can turn it into
// a feasible assignment.
func (m *model) bound(states []agentState, mu []float64, target float64, steps int, visit func(dual)) dual {
	cur := m.relax(states, mu)
	visit(cur)
	best, bestMu := cur, slices.Clone(mu)

	scale, stale := 2.0, 0
	for step := 0; step < steps; step++ {
		norm := floats.Dot(cur.gap, cur.gap)
		if norm == 0 {
			// The relaxed assignment covers the demand exactly, so it is
			// feasible and its value cannot be improved upon.
			break
		}
		if !math.IsNaN(target) && m.tighten(best.value) <= target+pruneGap(target) {
			break
		}
		aim := target
		if math.IsNaN(aim) {
			aim = best.value - 0.05*math.Max(1, math.Abs(best.value))
		}
		t := scale * (cur.value - aim) / norm
		if t <= 0 {
			t = scale / norm
		}
		floats.AddScaled(mu, -t, cur.gap)

		cur = m.relax(states, mu)
		visit(cur)
		if cur.value < best.value-1e-12 {
			best, stale = cur, 0
			copy(bestMu, mu)
			continue
		}
		if stale++; stale >= 4 {
			scale, stale = scale/2, 0
			if scale < 1e-3 {
				break
			}
		}
	}
	copy(mu, bestMu)
	return best
}
