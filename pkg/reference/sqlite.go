// SPDX-License-Identifier: Apache-2.0

package reference

import (
	"context"
	"database/sql"
	stderrors "errors"

	_ "modernc.org/sqlite"

	"github.com/jllopis/allot/pkg/errors"
)

// EnsureSQLiteSchema creates the reference tables if they do not exist.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS roles (
			position INTEGER NOT NULL UNIQUE,
			name TEXT PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS agents (
			position INTEGER NOT NULL UNIQUE,
			name TEXT PRIMARY KEY,
			capacity INTEGER
		);
		CREATE TABLE IF NOT EXISTS scores (
			agent TEXT NOT NULL REFERENCES agents(name),
			role TEXT NOT NULL REFERENCES roles(name),
			value REAL NOT NULL,
			PRIMARY KEY (agent, role)
		);
	`)
	return err
}

// LoadSQLite reads a table from the roles, agents and scores tables. Rows are
// ordered by position. Missing scores are 0; NULL capacities use
// defaultCapacity.
func LoadSQLite(ctx context.Context, db *sql.DB, defaultCapacity int) (*Table, error) {
	if db == nil {
		return nil, stderrors.New("reference: db is nil")
	}
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultCapacity
	}

	roles, err := queryNames(ctx, db, `SELECT name FROM roles ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(roles))
	for j, r := range roles {
		col[r] = j
	}

	rows, err := db.QueryContext(ctx, `SELECT name, capacity FROM agents ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	var (
		agents   []string
		capacity []int
	)
	row := make(map[string]int)
	for rows.Next() {
		var (
			name string
			c    sql.NullInt64
		)
		if err := rows.Scan(&name, &c); err != nil {
			rows.Close()
			return nil, err
		}
		row[name] = len(agents)
		agents = append(agents, name)
		if c.Valid {
			capacity = append(capacity, int(c.Int64))
		} else {
			capacity = append(capacity, defaultCapacity)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	values := make([][]float64, len(agents))
	for i := range values {
		values[i] = make([]float64, len(roles))
	}
	scores, err := db.QueryContext(ctx, `SELECT agent, role, value FROM scores`)
	if err != nil {
		return nil, err
	}
	defer scores.Close()
	for scores.Next() {
		var (
			agent, role string
			value       float64
		)
		if err := scores.Scan(&agent, &role, &value); err != nil {
			return nil, err
		}
		i, okA := row[agent]
		j, okR := col[role]
		if !okA || !okR {
			return nil, errors.Newf(errors.CodeInvalidInput, "score for unknown pair (%q, %q)", agent, role)
		}
		values[i][j] = value
	}
	if err := scores.Err(); err != nil {
		return nil, err
	}
	return NewTable(agents, roles, values, capacity)
}

func queryNames(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// StoreSQLite replaces the reference tables in db with t.
func StoreSQLite(ctx context.Context, db *sql.DB, t *Table) error {
	if err := EnsureSQLiteSchema(ctx, db); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM scores`, `DELETE FROM agents`, `DELETE FROM roles`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for j, name := range t.roles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO roles (position, name) VALUES (?, ?)`, j, name); err != nil {
			return err
		}
	}
	for i, name := range t.agents {
		if _, err := tx.ExecContext(ctx, `INSERT INTO agents (position, name, capacity) VALUES (?, ?, ?)`,
			i, name, t.capacity[i]); err != nil {
			return err
		}
		for j, v := range t.quality.Row(i) {
			if v == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO scores (agent, role, value) VALUES (?, ?, ?)`,
				name, t.roles[j], v); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
