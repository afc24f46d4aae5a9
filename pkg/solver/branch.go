// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ErrNodeLimit is reported in Result.Stopped when the search hits its node budget.
var ErrNodeLimit = errors.New("solver: node limit reached")

// Subgradient steps spent on the bound at the root and at every other node.
const (
	rootSteps  = 120
	childSteps = 40
)

type outcome struct {
	status    Status
	incumbent *plan
	nodes     int
	stopped   error
}

// node is a partial decision over agents: each is free, forced in or left out.
type node struct {
	states []agentState
	mu     []float64
	// bound is the parent's bound, used to order the queue.
	bound float64
	depth int
	seq   int
}

// nodeQueue pops the node with the highest bound first; among equal bounds
// the deepest, then the most recently pushed, wins.
type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(a, b int) bool {
	if q[a].bound != q[b].bound {
		return q[a].bound > q[b].bound
	}
	if q[a].depth != q[b].depth {
		return q[a].depth > q[b].depth
	}
	return q[a].seq > q[b].seq
}
func (q nodeQueue) Swap(a, b int) { q[a], q[b] = q[b], q[a] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(*node)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

// branchAndBound searches over which agents are used. Every node is bounded
// by the Lagrangian relaxation of the coverage rows; every agent set the
// relaxation keeps is turned into a feasible assignment by an exact
// min-cost flow over that set. A node is settled without branching once at
// most limit agents remain available or limit agents are already forced in,
// since the best assignment over a fixed set of agents is a flow problem.
type branchAndBound struct {
	model     *model
	tolerance float64
	nodeLimit int
	logger    *slog.Logger

	incumbent *plan
	best      float64
	tried     map[string]struct{}
}

func (b *branchAndBound) run(ctx context.Context) outcome {
	m := b.model
	b.best = math.Inf(-1)
	b.tried = make(map[string]struct{})

	// Every role is covered exactly, so Σ T = Σ L and the minimum number of
	// pairs is met iff the total demand reaches the agent limit.
	if m.total < m.limit {
		return outcome{status: StatusInfeasible}
	}

	root := &node{
		states: make([]agentState, m.rows),
		mu:     make([]float64, len(m.active)),
		bound:  math.Inf(1),
	}
	queue := &nodeQueue{root}
	var nodes, seq int

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return b.stop(nodes, err)
		}
		if b.nodeLimit > 0 && nodes >= b.nodeLimit {
			return b.stop(nodes, ErrNodeLimit)
		}

		n := heap.Pop(queue).(*node)
		if b.prunes(n.bound) {
			continue
		}
		nodes++

		k, bound, settled := b.expand(ctx, n, nodes)
		if settled || b.prunes(bound) {
			continue
		}
		for _, st := range []agentState{agentOut, agentIn} {
			if st == agentIn && count(n.states, agentIn) >= m.limit {
				continue
			}
			child := &node{
				states: slices.Clone(n.states),
				mu:     slices.Clone(n.mu),
				bound:  bound,
				depth:  n.depth + 1,
				seq:    seq,
			}
			child.states[k] = st
			seq++
			heap.Push(queue, child)
		}
	}

	if b.incumbent == nil {
		return outcome{status: StatusInfeasible, nodes: nodes}
	}
	return outcome{status: StatusOptimal, incumbent: b.incumbent, nodes: nodes}
}

// expand bounds n and reports the agent to branch on, or settled when the
// node needs no children.
func (b *branchAndBound) expand(ctx context.Context, n *node, id int) (branch int, bound float64, settled bool) {
	m := b.model
	in := count(n.states, agentIn)
	free := count(n.states, agentFree)

	// Without the agent limit the best assignment over the available agents
	// is a flow. It bounds the node and, when it happens to respect the
	// limit, solves it.
	open, ok := m.route(available(n.states))
	if !ok {
		return -1, math.Inf(-1), true
	}
	if open.agents() <= m.limit || in+free <= m.limit {
		b.offer(ctx, open, id)
		return -1, open.weight, true
	}
	if in == m.limit {
		use := make([]bool, m.rows)
		for i, st := range n.states {
			use[i] = st == agentIn
		}
		if p, ok := m.route(use); ok {
			b.offer(ctx, p, id)
		}
		return -1, math.Inf(-1), true
	}

	steps := childSteps
	if n.depth == 0 {
		steps = rootSteps
	}
	target := math.NaN()
	if b.incumbent != nil {
		target = b.best
	}
	d := m.bound(n.states, n.mu, target, steps, func(d dual) {
		b.tryAgents(ctx, n.states, d.chosen, id)
	})
	bound = m.tighten(math.Min(open.weight, d.value))

	// Branch on the most valuable free agent the relaxation keeps, falling
	// back to the heaviest free agent of the unlimited flow.
	branch = -1
	for _, i := range d.chosen {
		if d.worth[i] > 0 {
			branch = i
			break
		}
	}
	if branch < 0 {
		heaviest := math.Inf(-1)
		for i, st := range n.states {
			if st != agentFree {
				continue
			}
			var w float64
			for _, j := range open.roles[i] {
				w += m.weight[i][j]
			}
			if w > heaviest {
				branch, heaviest = i, w
			}
		}
	}
	return branch, bound, false
}

// tryAgents routes the demand over the forced agents plus chosen, once per
// distinct agent set.
func (b *branchAndBound) tryAgents(ctx context.Context, states []agentState, chosen []int, id int) {
	use := make([]bool, len(states))
	var key strings.Builder
	for i, st := range states {
		if st == agentIn {
			use[i] = true
		}
	}
	for _, i := range chosen {
		use[i] = true
	}
	for i, u := range use {
		if u {
			key.WriteString(strconv.Itoa(i))
			key.WriteByte(',')
		}
	}
	if _, seen := b.tried[key.String()]; seen {
		return
	}
	b.tried[key.String()] = struct{}{}
	if p, ok := b.model.route(use); ok {
		b.offer(ctx, p, id)
	}
}

func (b *branchAndBound) offer(ctx context.Context, p *plan, id int) {
	if p.agents() > b.model.limit {
		return
	}
	if b.incumbent != nil && p.weight <= b.best {
		return
	}
	b.incumbent, b.best = p, p.weight
	b.log(ctx, "new incumbent", "objective", p.weight, "node", id)
}

func (b *branchAndBound) prunes(bound float64) bool {
	if math.IsInf(bound, -1) {
		return true
	}
	return b.incumbent != nil && bound <= b.best+b.gap()
}

func (b *branchAndBound) gap() float64 {
	return b.tolerance * math.Max(1, math.Abs(b.best))
}

func (b *branchAndBound) stop(nodes int, reason error) outcome {
	return outcome{status: StatusNotSolved, incumbent: b.incumbent, nodes: nodes, stopped: reason}
}

func (b *branchAndBound) log(ctx context.Context, msg string, args ...any) {
	if b.logger != nil {
		b.logger.DebugContext(ctx, msg, args...)
	}
}

func available(states []agentState) []bool {
	use := make([]bool, len(states))
	for i, st := range states {
		use[i] = st != agentOut
	}
	return use
}

func count(states []agentState, want agentState) int {
	n := 0
	for _, st := range states {
		if st == want {
			n++
		}
	}
	return n
}

func pruneGap(best float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(best))
}
