// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jllopis/allot/pkg/errors"
)

func TestAssignment_Counts(t *testing.T) {
	a, err := FromRows([][]bool{
		{true, false, true},
		{false, false, false},
		{false, true, true},
	})
	require.NoError(t, err)

	rows, cols := a.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 3, cols)
	require.Equal(t, 4, a.Ones())
	require.Equal(t, 2, a.ActiveRows())
	require.Equal(t, []int{1, 1, 2}, a.ColSums())
	require.True(t, a.IsIdle(1))
	require.Equal(t, []int{0, 2}, a.ActiveColumns(0))
	require.Nil(t, a.ActiveColumns(1))
}

func TestAssignment_FromRowsRejectsRagged(t *testing.T) {
	_, err := FromRows([][]bool{{true}, {true, false}})

	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeInvalidInput))
}

func TestAssignment_CloneIsIndependent(t *testing.T) {
	a := NewAssignment(2, 2)
	a.Set(0, 1, true)

	c := a.Clone()
	c.Set(1, 0, true)

	require.False(t, a.At(1, 0))
	require.True(t, c.At(0, 1))
	require.False(t, a.Equal(c))
}

func TestAssignment_JSON(t *testing.T) {
	t.Run("round trips as 0/1 grid", func(t *testing.T) {
		a := NewAssignment(2, 3)
		a.Set(0, 2, true)
		a.Set(1, 0, true)

		data, err := json.Marshal(a)
		require.NoError(t, err)
		require.JSONEq(t, `[[0,0,1],[1,0,0]]`, string(data))

		var back Assignment
		require.NoError(t, json.Unmarshal(data, &back))
		require.True(t, a.Equal(&back))
	})

	t.Run("accepts solver floats and booleans", func(t *testing.T) {
		var a Assignment
		require.NoError(t, json.Unmarshal([]byte(`[[0.999999, 1e-7],[false, true]]`), &a))
		require.Equal(t, [][]int{{1, 0}, {0, 1}}, a.Ints())
	})

	t.Run("rejects strings", func(t *testing.T) {
		var a Assignment
		err := json.Unmarshal([]byte(`[["x"]]`), &a)
		require.Error(t, err)
	})

	t.Run("rejects ragged rows", func(t *testing.T) {
		var a Assignment
		err := json.Unmarshal([]byte(`[[1,0],[1]]`), &a)
		require.Error(t, err)
	})
}

func TestAssignment_Fingerprint(t *testing.T) {
	a := NewAssignment(2, 2)
	b := NewAssignment(2, 2)
	require.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Set(1, 1, true)
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	// Same cell count, different shape.
	require.NotEqual(t, NewAssignment(1, 4).Fingerprint(), NewAssignment(4, 1).Fingerprint())
}

func TestQuality(t *testing.T) {
	q, err := NewQuality([][]float64{{5, 0}, {0, 3}, {4, 4}})
	require.NoError(t, err)

	rows, cols := q.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 2, cols)
	require.Equal(t, 3.0, q.At(1, 1))
	require.Equal(t, []float64{4, 4}, q.Row(2))
	require.Equal(t, []float64{0, 5}, q.Restrict(0, []int{1, 0}))

	for name, values := range map[string][][]float64{
		"empty":    nil,
		"ragged":   {{1, 2}, {3}},
		"negative": {{1, -2}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewQuality(values)
			require.True(t, errors.Is(err, errors.CodeInvalidInput))
		})
	}
}
