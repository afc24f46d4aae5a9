// SPDX-License-Identifier: Apache-2.0

// Package reference holds the agent/role quality table that every operation
// reads, together with the loaders and sources that provide it.
//
// A Table fixes the row order (agents) and column order (roles) once, so
// assignment matrices built against it can be indexed by name without
// ambiguity.
package reference

import (
	"slices"
	"strings"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

// DefaultCapacity is used for agents whose capacity is not given.
const DefaultCapacity = 4

// Table is an immutable reference table.
type Table struct {
	agents   []string
	roles    []string
	quality  *matrix.Quality
	capacity []int
	agentIdx map[string]int
	roleIdx  map[string]int
}

// NewTable validates and copies its inputs. Names are trimmed and must be
// unique and non-empty; capacity needs one positive entry per agent.
func NewTable(agents, roles []string, values [][]float64, capacity []int) (*Table, error) {
	if len(agents) == 0 || len(roles) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "reference table needs at least one agent and one role", nil)
	}
	if len(values) != len(agents) {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"reference table has %d agents but %d quality rows", len(agents), len(values))
	}
	if len(capacity) != len(agents) {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"reference table has %d agents but %d capacities", len(agents), len(capacity))
	}
	for i, row := range values {
		if len(row) != len(roles) {
			return nil, errors.Newf(errors.CodeInvalidInput,
				"agent %q has %d scores, expected %d", agents[i], len(row), len(roles))
		}
	}
	for i, c := range capacity {
		if c <= 0 {
			return nil, errors.Newf(errors.CodeInvalidInput, "agent %q capacity must be positive, got %d", agents[i], c)
		}
	}

	agentNames, agentIdx, err := index("agent", agents)
	if err != nil {
		return nil, err
	}
	roleNames, roleIdx, err := index("role", roles)
	if err != nil {
		return nil, err
	}
	q, err := matrix.NewQuality(values)
	if err != nil {
		return nil, err
	}
	return &Table{
		agents:   agentNames,
		roles:    roleNames,
		quality:  q,
		capacity: slices.Clone(capacity),
		agentIdx: agentIdx,
		roleIdx:  roleIdx,
	}, nil
}

func index(kind string, names []string) ([]string, map[string]int, error) {
	out := make([]string, len(names))
	idx := make(map[string]int, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, nil, errors.Newf(errors.CodeInvalidInput, "%s %d has an empty name", kind, i)
		}
		if _, dup := idx[n]; dup {
			return nil, nil, errors.Newf(errors.CodeInvalidInput, "duplicate %s name %q", kind, n)
		}
		out[i] = n
		idx[n] = i
	}
	return out, idx, nil
}

// Dims returns the number of agents and roles.
func (t *Table) Dims() (agents, roles int) {
	return len(t.agents), len(t.roles)
}

// AgentIndex resolves an agent name to its row.
func (t *Table) AgentIndex(name string) (int, bool) {
	i, ok := t.agentIdx[strings.TrimSpace(name)]
	return i, ok
}

// RoleIndex resolves a role name to its column.
func (t *Table) RoleIndex(name string) (int, bool) {
	j, ok := t.roleIdx[strings.TrimSpace(name)]
	return j, ok
}

// Agent returns the name of row i.
func (t *Table) Agent(i int) string { return t.agents[i] }

// Role returns the name of column j.
func (t *Table) Role(j int) string { return t.roles[j] }

// Agents returns the agent names in row order.
func (t *Table) Agents() []string { return slices.Clone(t.agents) }

// Roles returns the role names in column order.
func (t *Table) Roles() []string { return slices.Clone(t.roles) }

// Quality returns the quality matrix. It is read-only and safe to share.
func (t *Table) Quality() *matrix.Quality { return t.quality }

// Capacity returns a copy of the per-agent capacity vector.
func (t *Table) Capacity() []int { return slices.Clone(t.capacity) }
