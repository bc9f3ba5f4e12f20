// Package storage persists ledger snapshots and the operation journal.
package storage

import (
	"context"
	"errors"

	"honestledger/internal/model"
)

// ErrVersionConflict is returned when a snapshot does not directly follow
// the stored one.
var ErrVersionConflict = errors.New("snapshot version conflict")

// Store loads and saves the full ledger snapshot.
type Store interface {
	Load(ctx context.Context) (model.Snapshot, bool, error)
	Save(ctx context.Context, snap model.Snapshot) error
}

// Journal records ledger operations in order.
type Journal interface {
	Append(ctx context.Context, entries ...model.JournalEntry) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Load(context.Context) (model.Snapshot, bool, error)   { return model.Snapshot{}, false, nil }
func (Nop) Save(context.Context, model.Snapshot) error           { return nil }
func (Nop) Append(context.Context, ...model.JournalEntry) error { return nil }

// Tee appends to every journal in order and stops at the first error.
type Tee []Journal

func (t Tee) Append(ctx context.Context, entries ...model.JournalEntry) error {
	for _, j := range t {
		if err := j.Append(ctx, entries...); err != nil {
			return err
		}
	}
	return nil
}
