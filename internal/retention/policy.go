// Package retention enforces the per-owner cap on stored snapshots.
package retention

import (
	"context"

	"github.com/yairfalse/restitch/internal/storage"
	"github.com/yairfalse/restitch/pkg/types"
)

// MaxSnapshotsPerOwner is the hard cap on non-deleted snapshots per owner.
const MaxSnapshotsPerOwner = 3

// LimitCheck is the result of probing an owner's retention headroom.
type LimitCheck struct {
	Count     int
	CanCreate bool
	// Oldest is the eviction candidate, set whenever the owner is at
	// or over the cap. The caller surfaces it for confirmation before
	// eviction.
	Oldest *types.Snapshot
}

// Policy evaluates the snapshot cap against the record store.
type Policy struct {
	store storage.Store
}

// NewPolicy creates a retention policy over the given store.
func NewPolicy(store storage.Store) *Policy {
	return &Policy{store: store}
}

// CheckLimit counts the owner's snapshots and selects the eviction
// candidate when the cap is reached. Lists are newest-first, so the
// oldest snapshot is the last entry.
func (p *Policy) CheckLimit(ctx context.Context, ownerID string) (*LimitCheck, error) {
	snaps, err := p.store.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	check := &LimitCheck{
		Count:     len(snaps),
		CanCreate: len(snaps) < MaxSnapshotsPerOwner,
	}
	if !check.CanCreate {
		oldest := snaps[len(snaps)-1]
		check.Oldest = &oldest
	}
	return check, nil
}
