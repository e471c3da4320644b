package storage

import (
	"context"

	"github.com/yairfalse/restitch/pkg/types"
)

// Store defines the interface for persisting snapshot records.
//
// Get returns (nil, nil) when no record exists so callers can tell
// "absent" apart from "store down"; every other failure is a Store-class
// error.
type Store interface {
	// List returns all snapshots for an owner, newest first.
	List(ctx context.Context, ownerID string) ([]types.Snapshot, error)

	// Create persists a new snapshot record, assigning its ID and
	// timestamps, and returns the stored record.
	Create(ctx context.Context, snap *types.Snapshot) (*types.Snapshot, error)

	// Update applies the non-nil fields of upd to the record and
	// returns the updated record.
	Update(ctx context.Context, id string, upd Update) (*types.Snapshot, error)

	// Get returns the snapshot by id, or (nil, nil) if absent.
	Get(ctx context.Context, id string) (*types.Snapshot, error)

	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}

// Update is a partial snapshot mutation. Nil fields are left untouched.
type Update struct {
	Status    *types.SnapshotStatus
	Progress  *int
	SizeLabel *string
	Payload   *types.SnapshotPayload
}

// StatusOf is a convenience for building status-only updates.
func StatusOf(s types.SnapshotStatus) *types.SnapshotStatus { return &s }

// ProgressOf is a convenience for building progress-only updates.
func ProgressOf(p int) *int { return &p }
