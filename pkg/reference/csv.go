// SPDX-License-Identifier: Apache-2.0

package reference

import (
	"encoding/csv"
	stderrors "errors"
	"io"
	"strconv"
	"strings"

	"github.com/jllopis/allot/pkg/errors"
)

// CapacityColumn names the optional CSV column holding agent capacity.
const CapacityColumn = "capacity"

// ReadCSV parses a table whose header row names the roles and whose first
// column names the agents. A column titled "capacity" (any case) carries the
// agent capacity instead of a role; blank capacities fall back to
// defaultCapacity. Blank score cells read as 0.
func ReadCSV(r io.Reader, defaultCapacity int) (*Table, error) {
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultCapacity
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if stderrors.Is(err, io.EOF) {
		return nil, errors.New(errors.CodeInvalidInput, "csv reference table is empty", nil)
	}
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "cannot read csv header", err)
	}
	if len(header) < 2 {
		return nil, errors.New(errors.CodeInvalidInput, "csv reference table needs a name column and at least one role", nil)
	}

	capCol := -1
	var roles []string
	var roleCols []int
	for c := 1; c < len(header); c++ {
		name := strings.TrimSpace(header[c])
		if strings.EqualFold(name, CapacityColumn) && capCol < 0 {
			capCol = c
			continue
		}
		roles = append(roles, name)
		roleCols = append(roleCols, c)
	}

	var (
		agents   []string
		values   [][]float64
		capacity []int
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "cannot read csv row", err).WithContext("line", line)
		}
		agents = append(agents, rec[0])

		row := make([]float64, len(roleCols))
		for k, c := range roleCols {
			v, err := parseCell(rec[c])
			if err != nil {
				return nil, errors.Newf(errors.CodeInvalidInput, "line %d, role %q: %v", line, roles[k], err)
			}
			row[k] = v
		}
		values = append(values, row)

		c := defaultCapacity
		if capCol >= 0 && strings.TrimSpace(rec[capCol]) != "" {
			c, err = strconv.Atoi(strings.TrimSpace(rec[capCol]))
			if err != nil {
				return nil, errors.Newf(errors.CodeInvalidInput, "line %d: capacity %q is not an integer", line, rec[capCol])
			}
		}
		capacity = append(capacity, c)
	}
	return NewTable(agents, roles, values, capacity)
}

func parseCell(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// WriteCSV writes t in the layout ReadCSV expects, capacity column last.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{"agent"}, t.roles...)
	header = append(header, CapacityColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, name := range t.agents {
		rec := make([]string, 0, len(header))
		rec = append(rec, name)
		for _, v := range t.quality.Row(i) {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rec = append(rec, strconv.Itoa(t.capacity[i]))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
