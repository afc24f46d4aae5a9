// SPDX-License-Identifier: Apache-2.0

// Package spacer reorders assignment rows so that consecutive rows share as
// few active cells as possible.
package spacer

import (
	"cmp"
	"slices"

	"github.com/jllopis/allot/pkg/errors"
)

// Row is one assignment row tagged with its index in the full matrix.
type Row struct {
	Index int    `json:"index"`
	Cells []bool `json:"cells"`
}

func (r Row) sum() int {
	n := 0
	for _, c := range r.Cells {
		if c {
			n++
		}
	}
	return n
}

// Overlap counts the cells active in both rows.
func Overlap(a, b []bool) int {
	n := 0
	for k := range min(len(a), len(b)) {
		if a[k] && b[k] {
			n++
		}
	}
	return n
}

// Respace returns rows in greedy minimum-overlap order.
//
// Rows are first sorted by active-cell count, descending, with ties on
// ascending Index. The first sorted row seeds the sequence; each next row is
// the one remaining in the pool with the smallest overlap against the last
// placed row, the earliest pool entry winning ties. The input slice is not
// modified.
func Respace(rows []Row) ([]Row, error) {
	if err := validate(rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Row{}, nil
	}

	pool := slices.Clone(rows)
	slices.SortStableFunc(pool, func(a, b Row) int {
		if c := cmp.Compare(b.sum(), a.sum()); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})

	out := make([]Row, 0, len(pool))
	out = append(out, pool[0])
	pool = pool[1:]
	for len(pool) > 0 {
		last := out[len(out)-1].Cells
		pick, least := 0, Overlap(last, pool[0].Cells)
		for k := 1; k < len(pool); k++ {
			if o := Overlap(last, pool[k].Cells); o < least {
				pick, least = k, o
			}
		}
		out = append(out, pool[pick])
		pool = slices.Delete(pool, pick, pick+1)
	}

	for k := range out {
		out[k].Cells = slices.Clone(out[k].Cells)
	}
	return out, nil
}

// Indices returns the Index of every row, in order.
func Indices(rows []Row) []int {
	out := make([]int, len(rows))
	for k, r := range rows {
		out[k] = r.Index
	}
	return out
}

// FromParallel zips a grid of rows with their original indices.
func FromParallel(cells [][]bool, indices []int) ([]Row, error) {
	if len(cells) != len(indices) {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"%d rows but %d original indices", len(cells), len(indices))
	}
	rows := make([]Row, len(cells))
	for k := range cells {
		rows[k] = Row{Index: indices[k], Cells: cells[k]}
	}
	return rows, nil
}

func validate(rows []Row) error {
	seen := make(map[int]struct{}, len(rows))
	for k, r := range rows {
		if k > 0 && len(r.Cells) != len(rows[0].Cells) {
			return errors.Newf(errors.CodeInvalidInput,
				"row %d has %d cells, expected %d", r.Index, len(r.Cells), len(rows[0].Cells))
		}
		if _, dup := seen[r.Index]; dup {
			return errors.Newf(errors.CodeInvalidInput, "duplicate row index %d", r.Index)
		}
		seen[r.Index] = struct{}{}
	}
	return nil
}
