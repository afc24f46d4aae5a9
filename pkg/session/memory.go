// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/jllopis/allot/pkg/matrix"
)

// MemoryStore keeps sessions in a concurrent map. Records vanish on restart.
type MemoryStore struct {
	records *xsync.Map[string, Record]
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: xsync.NewMap[string, Record](), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, a *matrix.Assignment) (Record, error) {
	if err := requireAssignment(a); err != nil {
		return Record{}, err
	}
	now := s.now().UTC()
	rec := Record{
		ID:          uuid.NewString(),
		Assignment:  a.Clone(),
		Fingerprint: a.FingerprintHex(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.records.Store(rec.ID, rec)
	return copyRecord(rec), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	rec, ok := s.records.Load(id)
	if !ok {
		return Record{}, notFound(id)
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, a *matrix.Assignment) (Record, error) {
	if err := requireAssignment(a); err != nil {
		return Record{}, err
	}
	rec, ok := s.records.Load(id)
	if !ok {
		return Record{}, notFound(id)
	}
	rec.Assignment = a.Clone()
	rec.Fingerprint = a.FingerprintHex()
	rec.UpdatedAt = s.now().UTC()
	s.records.Store(id, rec)
	return copyRecord(rec), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if _, ok := s.records.LoadAndDelete(id); !ok {
		return notFound(id)
	}
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int, error) {
	var stale []string
	s.records.Range(func(id string, rec Record) bool {
		if rec.UpdatedAt.Before(before) {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		s.records.Delete(id)
	}
	return len(stale), nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	return s.records.Size()
}

func copyRecord(rec Record) Record {
	rec.Assignment = rec.Assignment.Clone()
	return rec
}
