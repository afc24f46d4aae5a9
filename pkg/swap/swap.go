// SPDX-License-Identifier: Apache-2.0

// Package swap relieves an agent of its roles by handing the whole role set to
// the most similar idle agent.
package swap

import (
	"gonum.org/v1/gonum/floats"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

// Result describes a completed reassignment.
type Result struct {
	// Assignment is the updated matrix. The input matrix is left untouched.
	Assignment *matrix.Assignment
	// Replacement is the row index of the agent that took over.
	Replacement int
	// Similarity is the cosine similarity between the two agents over the
	// transferred roles.
	Similarity float64
	// Roles lists the transferred column indices.
	Roles []int
}

// Reassign moves every role held by agent target to the idle agent whose
// quality profile over those roles is most similar to target's.
//
// Similarity is the cosine of the two restricted quality vectors, defined as 0
// when either vector has zero magnitude. The best score starts at -1 so that
// an idle agent is always picked even at similarity 0; ties keep the earliest
// row. CodeNoCandidate is returned, and nothing is modified, when target holds
// no role or no other agent is idle.
func Reassign(t *matrix.Assignment, q *matrix.Quality, target int) (Result, error) {
	if t == nil || q == nil {
		return Result{}, errors.New(errors.CodeInvalidInput, "assignment and quality matrices are required", nil)
	}
	rows, cols := t.Dims()
	if qr, qc := q.Dims(); qr != rows || qc != cols {
		return Result{}, errors.Newf(errors.CodeInvalidInput,
			"assignment is %dx%d but quality matrix is %dx%d", rows, cols, qr, qc)
	}
	if target < 0 || target >= rows {
		return Result{}, errors.Newf(errors.CodeInvalidInput, "agent index %d out of range [0,%d)", target, rows)
	}

	active := t.ActiveColumns(target)
	if len(active) == 0 {
		return Result{}, errors.New(errors.CodeNoCandidate, "agent holds no role to hand over", nil).
			WithContext("agent", target)
	}

	want := q.Restrict(target, active)
	best, pick := -1.0, -1
	for i := 0; i < rows; i++ {
		if !t.IsIdle(i) {
			continue
		}
		if sim := Cosine(want, q.Restrict(i, active)); sim > best {
			best, pick = sim, i
		}
	}
	if pick < 0 {
		return Result{}, errors.New(errors.CodeNoCandidate, "no idle agent available", nil).
			WithContext("agent", target)
	}

	out := t.Clone()
	for _, j := range active {
		out.Set(target, j, false)
		out.Set(pick, j, true)
	}
	return Result{Assignment: out, Replacement: pick, Similarity: best, Roles: active}, nil
}

// Cosine returns a·b / (|a|·|b|), or 0 when either magnitude is 0.
func Cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
