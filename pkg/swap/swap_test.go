// SPDX-License-Identifier: Apache-2.0

package swap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

func mustAssignment(t *testing.T, grid [][]bool) *matrix.Assignment {
	t.Helper()
	a, err := matrix.FromRows(grid)
	require.NoError(t, err)
	return a
}

func TestReassign(t *testing.T) {
	q := matrix.MustQuality([][]float64{
		{4, 2, 0},
		{0, 0, 5},
		{1, 5, 0}, // idle, points the other way
		{2, 1, 3}, // idle, parallel to agent 0 on roles 0..1
	})

	t.Run("hands the role set to the most similar idle agent", func(t *testing.T) {
		tm := mustAssignment(t, [][]bool{
			{true, true, false},
			{false, false, true},
			{false, false, false},
			{false, false, false},
		})

		res, err := Reassign(tm, q, 0)

		require.NoError(t, err)
		require.Equal(t, 3, res.Replacement)
		require.InDelta(t, 1.0, res.Similarity, 1e-12)
		require.Equal(t, []int{0, 1}, res.Roles)
		require.True(t, res.Assignment.IsIdle(0))
		require.Equal(t, []int{0, 1}, res.Assignment.ActiveColumns(3))
		require.Equal(t, tm.Ones(), res.Assignment.Ones())
		require.Equal(t, tm.ColSums(), res.Assignment.ColSums())
		// The input matrix is not mutated.
		require.Equal(t, []int{0, 1}, tm.ActiveColumns(0))
	})

	t.Run("picks an idle agent even when every similarity is zero", func(t *testing.T) {
		zq := matrix.MustQuality([][]float64{{0, 3}, {0, 0}, {0, 0}})
		tm := mustAssignment(t, [][]bool{{false, true}, {false, false}, {false, false}})

		res, err := Reassign(tm, zq, 0)

		require.NoError(t, err)
		require.Equal(t, 1, res.Replacement, "ties resolve to the earliest row")
		require.Zero(t, res.Similarity)
	})

	t.Run("agent without roles has nothing to hand over", func(t *testing.T) {
		tm := mustAssignment(t, [][]bool{
			{true, true, false},
			{false, false, true},
			{false, false, false},
			{false, false, false},
		})
		before := tm.Clone()

		_, err := Reassign(tm, q, 2)

		require.True(t, errors.Is(err, errors.CodeNoCandidate))
		require.True(t, before.Equal(tm))
	})

	t.Run("fails when no agent is idle", func(t *testing.T) {
		tm := mustAssignment(t, [][]bool{
			{true, false, false},
			{false, false, true},
			{false, true, false},
			{true, false, false},
		})
		before := tm.Clone()

		_, err := Reassign(tm, q, 0)

		require.True(t, errors.Is(err, errors.CodeNoCandidate))
		require.True(t, before.Equal(tm))
	})

	t.Run("rejects mismatched shapes and indices", func(t *testing.T) {
		small := matrix.NewAssignment(2, 3)
		_, err := Reassign(small, q, 0)
		require.True(t, errors.Is(err, errors.CodeInvalidInput))

		full := matrix.NewAssignment(4, 3)
		_, err = Reassign(full, q, 4)
		require.True(t, errors.Is(err, errors.CodeInvalidInput))
	})
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	require.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	require.Zero(t, Cosine([]float64{0, 0}, []float64{1, 1}))
	require.Zero(t, Cosine(nil, nil))
}
