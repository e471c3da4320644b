package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/pkg/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingSnapshot(owner string) *types.Snapshot {
	return &types.Snapshot{
		OwnerID:   owner,
		Kind:      types.KindFull,
		Status:    types.StatusPending,
		SizeLabel: "0 B",
	}
}

func TestSQLiteStore_CreateAssignsIDAndTimestamps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, pendingSnapshot("owner-1"))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.Payload)
}

func TestSQLiteStore_CreateRejectsInvalidRecord(t *testing.T) {
	store := openTestStore(t)

	snap := pendingSnapshot("owner-1")
	snap.Kind = "bogus"
	_, err := store.Create(context.Background(), snap)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		created, err := store.Create(ctx, pendingSnapshot("owner-1"))
		require.NoError(t, err)
		ids = append(ids, created.ID)
		time.Sleep(5 * time.Millisecond) // distinct created_at
	}
	_, err := store.Create(ctx, pendingSnapshot("owner-2"))
	require.NoError(t, err)

	snaps, err := store.List(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, ids[2], snaps[0].ID)
	assert.Equal(t, ids[1], snaps[1].ID)
	assert.Equal(t, ids[0], snaps[2].ID)
}

func TestSQLiteStore_ListEmptyOwner(t *testing.T) {
	store := openTestStore(t)
	snaps, err := store.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSQLiteStore_UpdateCompletesSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, pendingSnapshot("owner-1"))
	require.NoError(t, err)

	payload := &types.SnapshotPayload{
		Kind:       types.KindFull,
		CapturedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Profile:    &types.Profile{Username: "kael", Bio: "hi"},
		Memberships: []types.Guild{
			{ID: "g1", Name: "alpha"},
		},
	}
	size := "1.2 KB"
	updated, err := store.Update(ctx, created.ID, Update{
		Status:    StatusOf(types.StatusCompleted),
		Progress:  ProgressOf(100),
		SizeLabel: &size,
		Payload:   payload,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, updated.Status)
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, "1.2 KB", updated.SizeLabel)
	require.NotNil(t, updated.Payload)
	assert.Equal(t, "kael", updated.Payload.Profile.Username)
	require.Len(t, updated.Payload.Memberships, 1)
	assert.Equal(t, "g1", updated.Payload.Memberships[0].ID)
}

func TestSQLiteStore_PartialUpdateLeavesOtherFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, pendingSnapshot("owner-1"))
	require.NoError(t, err)

	updated, err := store.Update(ctx, created.ID, Update{Progress: ProgressOf(40)})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Progress)
	assert.Equal(t, types.StatusPending, updated.Status)
	assert.Equal(t, "0 B", updated.SizeLabel)
}

func TestSQLiteStore_UpdateMissingID(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Update(context.Background(), "missing", Update{Progress: ProgressOf(10)})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.TypeOf(err))
}

func TestSQLiteStore_GetAbsentReturnsNilNil(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_DeleteIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, pendingSnapshot("owner-1"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))
	require.NoError(t, store.Delete(ctx, created.ID))

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
