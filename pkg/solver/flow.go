// SPDX-License-Identifier: Apache-2.0

package solver

import "math"

type arc struct {
	to   int
	rev  int
	cap  int
	cost float64
}

// network is a residual graph for min-cost flow.
type network struct {
	arcs [][]arc
}

func newNetwork(n int) *network {
	return &network{arcs: make([][]arc, n)}
}

func (g *network) addArc(from, to, capacity int, cost float64) {
	g.arcs[from] = append(g.arcs[from], arc{to: to, rev: len(g.arcs[to]), cap: capacity, cost: cost})
	g.arcs[to] = append(g.arcs[to], arc{to: from, rev: len(g.arcs[from]) - 1, cap: 0, cost: -cost})
}

// minCostFlow sends up to want units from s to t along successive shortest
// paths and returns the amount sent. Costs may be negative as long as the
// initial graph has no negative cycle; the first potentials come from
// Bellman-Ford and later ones from Dijkstra on reduced costs.
func (g *network) minCostFlow(s, t, want int) int {
	n := len(g.arcs)
	inf := math.Inf(1)

	pot := make([]float64, n)
	for v := range pot {
		pot[v] = inf
	}
	pot[s] = 0
	for round := 0; round < n; round++ {
		changed := false
		for u := 0; u < n; u++ {
			if math.IsInf(pot[u], 1) {
				continue
			}
			for _, e := range g.arcs[u] {
				if e.cap > 0 && pot[u]+e.cost < pot[e.to] {
					pot[e.to] = pot[u] + e.cost
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	for v := range pot {
		if math.IsInf(pot[v], 1) {
			pot[v] = 0
		}
	}

	dist := make([]float64, n)
	done := make([]bool, n)
	prevNode := make([]int, n)
	prevArc := make([]int, n)

	flow := 0
	for flow < want {
		for v := range dist {
			dist[v] = inf
			done[v] = false
		}
		dist[s] = 0
		for {
			u := -1
			for v := 0; v < n; v++ {
				if !done[v] && !math.IsInf(dist[v], 1) && (u < 0 || dist[v] < dist[u]) {
					u = v
				}
			}
			if u < 0 {
				break
			}
			done[u] = true
			for k, e := range g.arcs[u] {
				if e.cap == 0 || done[e.to] {
					continue
				}
				if d := dist[u] + e.cost + pot[u] - pot[e.to]; d < dist[e.to] {
					dist[e.to] = d
					prevNode[e.to] = u
					prevArc[e.to] = k
				}
			}
		}
		if math.IsInf(dist[t], 1) {
			break
		}
		for v := range pot {
			if !math.IsInf(dist[v], 1) {
				pot[v] += dist[v]
			}
		}

		push := want - flow
		for v := t; v != s; v = prevNode[v] {
			push = min(push, g.arcs[prevNode[v]][prevArc[v]].cap)
		}
		for v := t; v != s; v = prevNode[v] {
			e := &g.arcs[prevNode[v]][prevArc[v]]
			e.cap -= push
			g.arcs[v][e.rev].cap += push
		}
		flow += push
	}
	return flow
}
