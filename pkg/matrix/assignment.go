// SPDX-License-Identifier: Apache-2.0

// Package matrix holds the data structures exchanged by the solver, the swapper
// and the spacer: the binary assignment matrix and the read-only quality matrix.
package matrix

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/jllopis/allot/pkg/errors"
)

// Assignment is an R×C binary matrix: cell (i, j) is set iff agent i covers role j.
// The zero value is an empty 0×0 matrix.
type Assignment struct {
	rows  int
	cols  int
	cells []bool
}

// NewAssignment returns an all-zero rows×cols assignment.
func NewAssignment(rows, cols int) *Assignment {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: negative dimensions %dx%d", rows, cols))
	}
	return &Assignment{rows: rows, cols: cols, cells: make([]bool, rows*cols)}
}

// FromRows builds an assignment from a row-major boolean grid.
// Ragged input is rejected with CodeInvalidInput.
func FromRows(grid [][]bool) (*Assignment, error) {
	if len(grid) == 0 {
		return NewAssignment(0, 0), nil
	}
	cols := len(grid[0])
	a := NewAssignment(len(grid), cols)
	for i, row := range grid {
		if len(row) != cols {
			return nil, errors.Newf(errors.CodeInvalidInput,
				"row %d has %d columns, expected %d", i, len(row), cols)
		}
		copy(a.cells[i*cols:(i+1)*cols], row)
	}
	return a, nil
}

// Dims returns the number of rows (agents) and columns (roles).
func (a *Assignment) Dims() (rows, cols int) {
	return a.rows, a.cols
}

// At reports whether cell (i, j) is set.
func (a *Assignment) At(i, j int) bool {
	a.check(i, j)
	return a.cells[i*a.cols+j]
}

// Set writes cell (i, j).
func (a *Assignment) Set(i, j int, v bool) {
	a.check(i, j)
	a.cells[i*a.cols+j] = v
}

func (a *Assignment) check(i, j int) {
	if i < 0 || i >= a.rows || j < 0 || j >= a.cols {
		panic(fmt.Sprintf("matrix: index (%d,%d) out of range %dx%d", i, j, a.rows, a.cols))
	}
}

// Row returns a copy of row i.
func (a *Assignment) Row(i int) []bool {
	out := make([]bool, a.cols)
	copy(out, a.cells[i*a.cols:(i+1)*a.cols])
	return out
}

// RowSum counts the roles covered by agent i.
func (a *Assignment) RowSum(i int) int {
	n := 0
	for _, v := range a.cells[i*a.cols : (i+1)*a.cols] {
		if v {
			n++
		}
	}
	return n
}

// ColSums counts the agents covering each role.
func (a *Assignment) ColSums() []int {
	sums := make([]int, a.cols)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			if a.cells[i*a.cols+j] {
				sums[j]++
			}
		}
	}
	return sums
}

// IsIdle reports whether agent i holds no role.
func (a *Assignment) IsIdle(i int) bool {
	return a.RowSum(i) == 0
}

// ActiveRows counts agents holding at least one role.
func (a *Assignment) ActiveRows() int {
	n := 0
	for i := 0; i < a.rows; i++ {
		if !a.IsIdle(i) {
			n++
		}
	}
	return n
}

// Ones counts all set cells.
func (a *Assignment) Ones() int {
	n := 0
	for _, v := range a.cells {
		if v {
			n++
		}
	}
	return n
}

// ActiveColumns returns the column indices set in row i, ascending.
func (a *Assignment) ActiveColumns(i int) []int {
	var cols []int
	for j := 0; j < a.cols; j++ {
		if a.cells[i*a.cols+j] {
			cols = append(cols, j)
		}
	}
	return cols
}

// Clone returns a deep copy.
func (a *Assignment) Clone() *Assignment {
	c := &Assignment{rows: a.rows, cols: a.cols, cells: make([]bool, len(a.cells))}
	copy(c.cells, a.cells)
	return c
}

// Equal reports whether both matrices have the same shape and cells.
func (a *Assignment) Equal(b *Assignment) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	for k := range a.cells {
		if a.cells[k] != b.cells[k] {
			return false
		}
	}
	return true
}

// Rows returns the matrix as a row-major boolean grid.
func (a *Assignment) Rows() [][]bool {
	out := make([][]bool, a.rows)
	for i := range out {
		out[i] = a.Row(i)
	}
	return out
}

// Ints returns the matrix as 0/1 integers, the wire representation.
func (a *Assignment) Ints() [][]int {
	out := make([][]int, a.rows)
	for i := range out {
		row := make([]int, a.cols)
		for j := range row {
			if a.cells[i*a.cols+j] {
				row[j] = 1
			}
		}
		out[i] = row
	}
	return out
}

// Fingerprint hashes shape and contents. Two matrices with equal fingerprints
// are treated as the same revision by the session store and the HTTP ETag.
func (a *Assignment) Fingerprint() uint64 {
	buf := make([]byte, 16+len(a.cells))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.rows))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.cols))
	for k, v := range a.cells {
		if v {
			buf[16+k] = 1
		}
	}
	return xxh3.Hash(buf)
}

// FingerprintHex is Fingerprint formatted for headers and logs.
func (a *Assignment) FingerprintHex() string {
	return strconv.FormatUint(a.Fingerprint(), 16)
}

// MarshalJSON encodes the matrix as nested arrays of 0/1.
func (a *Assignment) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.Ints())
}

// UnmarshalJSON decodes nested arrays of numbers or booleans. Numbers above 0.5
// count as assigned so that solver output such as 0.999999 round-trips.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var raw [][]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return errors.New(errors.CodeInvalidInput, "assignment matrix must be an array of arrays", err)
	}
	grid := make([][]bool, len(raw))
	for i, row := range raw {
		grid[i] = make([]bool, len(row))
		for j, cell := range row {
			v, err := decodeCell(cell)
			if err != nil {
				return errors.New(errors.CodeInvalidInput,
					fmt.Sprintf("assignment cell (%d,%d)", i, j), err)
			}
			grid[i][j] = v
		}
	}
	parsed, err := FromRows(grid)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

func decodeCell(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return false, fmt.Errorf("expected 0/1 or boolean, got %s", string(raw))
	}
	return f > 0.5, nil
}
