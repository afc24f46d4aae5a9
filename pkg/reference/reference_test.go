// SPDX-License-Identifier: Apache-2.0

package reference

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jllopis/allot/pkg/errors"
)

const workoutCSV = `exercise,chest,back,legs,capacity
bench press,5,0,0,3
row,0,4,,2
squat,0,1,5,
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(workoutCSV), 4)
	require.NoError(t, err)

	agents, roles := tbl.Dims()
	require.Equal(t, 3, agents)
	require.Equal(t, 3, roles)
	require.Equal(t, []string{"chest", "back", "legs"}, tbl.Roles())
	require.Equal(t, []int{3, 2, 4}, tbl.Capacity())

	i, ok := tbl.AgentIndex("row")
	require.True(t, ok)
	require.Equal(t, 1, i)
	require.Equal(t, 4.0, tbl.Quality().At(1, 1))
	require.Zero(t, tbl.Quality().At(1, 2), "blank cells read as zero")

	j, ok := tbl.RoleIndex(" legs ")
	require.True(t, ok)
	require.Equal(t, 2, j)
	_, ok = tbl.AgentIndex("deadlift")
	require.False(t, ok)
}

func TestReadCSV_WithoutCapacityColumn(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("name,a,b\nx,1,2\ny,3,4\n"), 0)
	require.NoError(t, err)
	require.Equal(t, []int{DefaultCapacity, DefaultCapacity}, tbl.Capacity())
}

func TestReadCSV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no roles", "name\nx\n"},
		{"no agents", "name,a\n"},
		{"non-numeric", "name,a\nx,lots\n"},
		{"negative", "name,a\nx,-1\n"},
		{"bad capacity", "name,a,capacity\nx,1,many\n"},
		{"ragged", "name,a,b\nx,1\n"},
		{"duplicate agent", "name,a\nx,1\nx,2\n"},
		{"duplicate role", "name,a,a\nx,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data), 4)
			require.True(t, errors.Is(err, errors.CodeInvalidInput), "got %v", err)
		})
	}
}

func TestCSVRoundTrip(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(workoutCSV), 4)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	back, err := ReadCSV(&buf, 1)
	require.NoError(t, err)

	require.Equal(t, tbl.Agents(), back.Agents())
	require.Equal(t, tbl.Capacity(), back.Capacity())
	require.Equal(t, tbl.Quality().Values(), back.Quality().Values())
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
roles: [chest, back]
agents:
  - name: bench press
    capacity: 2
    scores: {chest: 5}
  - name: row
    scores: {back: 4, chest: 1}
`)
	tbl, err := ParseYAML(data, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"bench press", "row"}, tbl.Agents())
	require.Equal(t, []int{2, 3}, tbl.Capacity())
	require.Equal(t, [][]float64{{5, 0}, {1, 4}}, tbl.Quality().Values())

	_, err = ParseYAML([]byte("roles: [a]\nagents:\n  - name: x\n    scores: {b: 1}\n"), 3)
	require.True(t, errors.Is(err, errors.CodeInvalidInput))

	_, err = ParseYAML([]byte("roles: [a\n"), 3)
	require.True(t, errors.Is(err, errors.CodeInvalidInput))
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
roles = ["chest", "back"]

[[agents]]
name = "bench press"
capacity = 2
[agents.scores]
chest = 5.0

[[agents]]
name = "row"
[agents.scores]
back = 4.0
`)
	tbl, err := ParseTOML(data, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"bench press", "row"}, tbl.Agents())
	require.Equal(t, []int{2, 3}, tbl.Capacity())
	require.Equal(t, [][]float64{{5, 0}, {0, 4}}, tbl.Quality().Values())
}

func TestDocumentRoundTrip(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(workoutCSV), 4)
	require.NoError(t, err)

	y, err := MarshalYAML(tbl)
	require.NoError(t, err)
	fromYAML, err := ParseYAML(y, 1)
	require.NoError(t, err)
	require.Equal(t, tbl.Quality().Values(), fromYAML.Quality().Values())
	require.Equal(t, tbl.Capacity(), fromYAML.Capacity())

	tm, err := MarshalTOML(tbl)
	require.NoError(t, err)
	fromTOML, err := ParseTOML(tm, 1)
	require.NoError(t, err)
	require.Equal(t, tbl.Agents(), fromTOML.Agents())
	require.Equal(t, tbl.Quality().Values(), fromTOML.Quality().Values())
}

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	tbl, err := ReadCSV(strings.NewReader(workoutCSV), 4)
	require.NoError(t, err)

	require.NoError(t, StoreSQLite(ctx, db, tbl))
	src := NewSQLiteSource(db, 4)
	back, err := src.Table(ctx)

	require.NoError(t, err)
	require.Equal(t, tbl.Agents(), back.Agents())
	require.Equal(t, tbl.Roles(), back.Roles())
	require.Equal(t, tbl.Capacity(), back.Capacity())
	require.Equal(t, tbl.Quality().Values(), back.Quality().Values())
	require.NoError(t, src.Close())
}

func TestSQLiteNullCapacityUsesDefault(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	require.NoError(t, EnsureSQLiteSchema(ctx, db))
	_, err := db.ExecContext(ctx, `
		INSERT INTO roles (position, name) VALUES (0, 'chest');
		INSERT INTO agents (position, name, capacity) VALUES (0, 'push up', NULL);
		INSERT INTO scores (agent, role, value) VALUES ('push up', 'chest', 3);
	`)
	require.NoError(t, err)

	tbl, err := LoadSQLite(ctx, db, 6)
	require.NoError(t, err)
	require.Equal(t, []int{6}, tbl.Capacity())
	require.Equal(t, 3.0, tbl.Quality().At(0, 0))
}

func TestSQLiteSourceMissingSchema(t *testing.T) {
	_, err := NewSQLiteSource(openMemoryDB(t), 4).Table(context.Background())
	require.True(t, errors.Is(err, errors.CodeDataUnavailable))
}

func TestStatic(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(workoutCSV), 4)
	require.NoError(t, err)

	got, err := NewStatic(tbl).Table(context.Background())
	require.NoError(t, err)
	require.Same(t, tbl, got)

	_, err = NewStatic(nil).Table(context.Background())
	require.True(t, errors.Is(err, errors.CodeDataUnavailable))
}

func TestDetectFormat(t *testing.T) {
	require.Equal(t, FormatYAML, DetectFormat("t.yml", FormatAuto))
	require.Equal(t, FormatTOML, DetectFormat("t.toml", ""))
	require.Equal(t, FormatSQLite, DetectFormat("t.sqlite3", FormatAuto))
	require.Equal(t, FormatCSV, DetectFormat("qMatrix.csv", FormatAuto))
	require.Equal(t, FormatYAML, DetectFormat("t.csv", FormatYAML))
}

func TestOpen(t *testing.T) {
	_, err := Open("", FormatAuto, 4, nil)
	require.True(t, errors.Is(err, errors.CodeDataUnavailable))

	_, err = Open(filepath.Join(t.TempDir(), "missing.csv"), FormatAuto, 4, nil)
	require.True(t, errors.Is(err, errors.CodeDataUnavailable))

	_, err = Open(filepath.Join(t.TempDir(), "missing.db"), FormatAuto, 4, nil)
	require.True(t, errors.Is(err, errors.CodeDataUnavailable))

	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte(workoutCSV), 0o644))
	src, err := Open(path, FormatAuto, 4, nil)
	require.NoError(t, err)
	tbl, err := src.Table(context.Background())
	require.NoError(t, err)
	require.Equal(t, "squat", tbl.Agent(2))
}

func TestFileSourceReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte(workoutCSV), 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	before, _ := src.Table(context.Background())

	changed := make(chan *Table, 1)
	src.OnChange(func(tbl *Table) { changed <- tbl })

	require.NoError(t, os.WriteFile(path, []byte("exercise,chest\nplank,1\n"), 0o644))
	require.NoError(t, src.Reload())
	after, _ := src.Table(context.Background())
	require.Equal(t, []string{"plank"}, after.Agents())
	require.Equal(t, []string{"bench press", "row", "squat"}, before.Agents(), "old snapshot is unchanged")
	require.Same(t, after, <-changed)

	require.NoError(t, os.WriteFile(path, []byte("exercise,chest\nplank,oops\n"), 0o644))
	require.Error(t, src.Reload())
	kept, _ := src.Table(context.Background())
	require.Same(t, after, kept, "failed reload keeps the previous snapshot")
}

func TestFileSourceWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte(workoutCSV), 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))
	defer src.Close()

	require.NoError(t, os.WriteFile(path, []byte("exercise,chest\nplank,1\n"), 0o644))

	require.Eventually(t, func() bool {
		tbl, _ := src.Table(context.Background())
		agents, _ := tbl.Dims()
		return agents == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewTable_Rejects(t *testing.T) {
	_, err := NewTable([]string{"a"}, []string{"r"}, [][]float64{{1}}, []int{0})
	require.True(t, errors.Is(err, errors.CodeInvalidInput))
	_, err = NewTable([]string{""}, []string{"r"}, [][]float64{{1}}, []int{1})
	require.True(t, errors.Is(err, errors.CodeInvalidInput))
	_, err = NewTable([]string{"a"}, []string{"r"}, [][]float64{{1}, {2}}, []int{1})
	require.True(t, errors.Is(err, errors.CodeInvalidInput))
}
