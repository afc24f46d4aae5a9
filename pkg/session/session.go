// SPDX-License-Identifier: Apache-2.0

// Package session keeps assignment matrices between operations so that a
// client can solve once and then reassign by session id instead of sending
// the matrix back.
package session

import (
	"context"
	"time"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
)

// Record is a stored assignment revision.
type Record struct {
	ID          string
	Assignment  *matrix.Assignment
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store persists session records. Get and Update return CodeNotFound for
// unknown ids. Implementations hand out copies, so callers may mutate the
// returned assignment freely.
type Store interface {
	Create(ctx context.Context, a *matrix.Assignment) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, a *matrix.Assignment) (Record, error)
	Delete(ctx context.Context, id string) error
	// Purge removes records not updated since before and reports how many.
	Purge(ctx context.Context, before time.Time) (int, error)
}

func notFound(id string) error {
	return errors.New(errors.CodeNotFound, "session not found", nil).WithContext("session_id", id)
}

func requireAssignment(a *matrix.Assignment) error {
	if a == nil {
		return errors.New(errors.CodeInvalidInput, "assignment matrix is required", nil)
	}
	return nil
}
