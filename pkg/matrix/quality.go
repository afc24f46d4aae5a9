// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/jllopis/allot/pkg/errors"
)

// Quality is the read-only R×C suitability matrix. Entry (i, j) scores how well
// agent i performs role j; 0 means the agent cannot perform the role.
type Quality struct {
	dense *mat.Dense
}

// NewQuality validates values (rectangular, finite, non-negative, non-empty)
// and copies them into a new Quality.
func NewQuality(values [][]float64) (*Quality, error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "quality matrix is empty", nil)
	}
	rows, cols := len(values), len(values[0])
	data := make([]float64, 0, rows*cols)
	for i, row := range values {
		if len(row) != cols {
			return nil, errors.Newf(errors.CodeInvalidInput,
				"quality row %d has %d columns, expected %d", i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, errors.Newf(errors.CodeInvalidInput,
					"quality cell (%d,%d) must be a finite non-negative number, got %v", i, j, v)
			}
		}
		data = append(data, row...)
	}
	return &Quality{dense: mat.NewDense(rows, cols, data)}, nil
}

// MustQuality is NewQuality for fixtures; it panics on invalid input.
func MustQuality(values [][]float64) *Quality {
	q, err := NewQuality(values)
	if err != nil {
		panic(err)
	}
	return q
}

// Dims returns the number of agents and roles.
func (q *Quality) Dims() (rows, cols int) {
	return q.dense.Dims()
}

// At returns the score of agent i for role j.
func (q *Quality) At(i, j int) float64 {
	return q.dense.At(i, j)
}

// Row returns a copy of agent i's scores.
func (q *Quality) Row(i int) []float64 {
	return mat.Row(nil, i, q.dense)
}

// Restrict returns agent i's scores at the given columns, in order.
func (q *Quality) Restrict(i int, cols []int) []float64 {
	out := make([]float64, len(cols))
	for k, j := range cols {
		out[k] = q.dense.At(i, j)
	}
	return out
}

// Values returns a row-major copy of the matrix.
func (q *Quality) Values() [][]float64 {
	rows, _ := q.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = q.Row(i)
	}
	return out
}

// Matrix exposes the scores as a read-only gonum matrix.
func (q *Quality) Matrix() mat.Matrix {
	return q.dense
}
