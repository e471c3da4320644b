package engine

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/internal/remote"
	"github.com/yairfalse/restitch/internal/retention"
	"github.com/yairfalse/restitch/internal/session"
	"github.com/yairfalse/restitch/internal/storage"
	"github.com/yairfalse/restitch/pkg/types"
)

// fakeReader maps credentials to canned remote state.
type fakeReader struct {
	mu           sync.Mutex
	profiles     map[string]*types.Profile
	guilds       []types.Guild
	settings     *types.AccountSettings
	profileCalls atomic.Int64
}

func (f *fakeReader) GetProfile(_ context.Context, credential string) (*types.Profile, error) {
	f.profileCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[credential]
	if !ok {
		return nil, apperrors.New(apperrors.ErrorTypeUnauthenticated, apperrors.ServiceAccount,
			"account service rejected the credential")
	}
	clone := *p
	return &clone, nil
}

func (f *fakeReader) GetSettings(context.Context, string) (*types.AccountSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeReader) GetGuilds(context.Context, string) ([]types.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Guild(nil), f.guilds...), nil
}

func (f *fakeReader) GetSavedContent(context.Context, string) *types.SavedContent {
	return &types.SavedContent{}
}

func (f *fakeReader) DownloadMedia(context.Context, *types.Profile) types.MediaSet {
	return types.MediaSet{}
}

// fakeWriter records applied patches; errs maps field names to injected
// failures.
type fakeWriter struct {
	mu      sync.Mutex
	applied []remote.FieldPatch
	errs    map[string]error
}

func (f *fakeWriter) ApplyFieldUpdate(_ context.Context, _ string, patch remote.FieldPatch, _ string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, patch)
	return f.errs[patch.Field]
}

func (f *fakeWriter) appliedFields() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fields []string
	for _, p := range f.applied {
		fields = append(fields, p.Field)
	}
	return fields
}

type testEnv struct {
	engine *Engine
	store  storage.Store
	reader *fakeReader
	writer *fakeWriter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sessions := session.NewStore(time.Minute)
	t.Cleanup(sessions.Close)

	reader := &fakeReader{
		profiles: map[string]*types.Profile{
			"cred-1": {ID: "owner-1", Username: "kael", Bio: "live bio"},
		},
	}
	writer := &fakeWriter{errs: map[string]error{}}
	eng := New(store, reader, writer, sessions, logger.NewSimple())
	return &testEnv{engine: eng, store: store, reader: reader, writer: writer}
}

func TestEngine_StartSnapshot_BuildsInBackground(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.StartSnapshot(ctx, "cred-1", types.KindFull)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, created.Status)
	assert.Equal(t, "owner-1", created.OwnerID)

	env.engine.WaitForBuilds()

	got, err := env.engine.GetSnapshotStatus(ctx, "cred-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Payload)
	assert.Equal(t, "kael", got.Payload.Profile.Username)
}

func TestEngine_StartSnapshot_InvalidKind(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.StartSnapshot(context.Background(), "cred-1", "bogus")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}

func TestEngine_StartSnapshot_BadCredential(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.StartSnapshot(context.Background(), "wrong", types.KindFull)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeUnauthenticated, apperrors.TypeOf(err))
}

func TestEngine_RetentionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < retention.MaxSnapshotsPerOwner; i++ {
		snap, err := env.engine.StartSnapshot(ctx, "cred-1", types.KindFull)
		require.NoError(t, err)
		ids = append(ids, snap.ID)
		time.Sleep(5 * time.Millisecond) // distinct created_at
	}
	env.engine.WaitForBuilds()

	// At the cap an unconfirmed create is refused, naming the oldest.
	_, err := env.engine.StartSnapshot(ctx, "cred-1", types.KindFull)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeLimitReached, apperrors.TypeOf(err))

	var ee *apperrors.EngineError
	require.ErrorAs(t, err, &ee)
	require.NotNil(t, ee.Oldest)
	assert.Equal(t, ids[0], ee.Oldest.ID)
	assert.Equal(t, "full", ee.Oldest.Kind)

	// Nothing was evicted by the refusal.
	snaps, err := env.engine.ListSnapshots(ctx, "cred-1")
	require.NoError(t, err)
	require.Len(t, snaps, retention.MaxSnapshotsPerOwner)

	// Confirmation evicts the oldest and creates the new snapshot.
	created, err := env.engine.ConfirmAndStartSnapshot(ctx, "cred-1", types.KindMemberships)
	require.NoError(t, err)
	env.engine.WaitForBuilds()

	snaps, err = env.engine.ListSnapshots(ctx, "cred-1")
	require.NoError(t, err)
	require.Len(t, snaps, retention.MaxSnapshotsPerOwner)

	var remaining []string
	for _, s := range snaps {
		remaining = append(remaining, s.ID)
	}
	assert.NotContains(t, remaining, ids[0])
	assert.Contains(t, remaining, ids[1])
	assert.Contains(t, remaining, ids[2])
	assert.Contains(t, remaining, created.ID)
}

func TestEngine_Authenticate_CachesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.engine.Authenticate(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", sess.OwnerID)
	assert.EqualValues(t, 1, env.reader.profileCalls.Load())

	_, err = env.engine.Authenticate(ctx, "cred-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.reader.profileCalls.Load())
}

func TestEngine_Authenticate_EmptyCredential(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}

func TestEngine_GetSnapshotStatus_OwnerMismatchLooksAbsent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	foreign, err := env.store.Create(ctx, &types.Snapshot{
		OwnerID:   "someone-else",
		Kind:      types.KindFull,
		Status:    types.StatusPending,
		SizeLabel: "0 B",
	})
	require.NoError(t, err)

	_, err = env.engine.GetSnapshotStatus(ctx, "cred-1", foreign.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.TypeOf(err))

	// Identical to the genuinely-missing case.
	_, missingErr := env.engine.GetSnapshotStatus(ctx, "cred-1", "no-such-id")
	assert.Equal(t, err.Error(), missingErr.Error())
}

func TestEngine_DeleteSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.StartSnapshot(ctx, "cred-1", types.KindFull)
	require.NoError(t, err)
	env.engine.WaitForBuilds()

	require.NoError(t, env.engine.DeleteSnapshot(ctx, "cred-1", created.ID))

	_, err = env.engine.GetSnapshotStatus(ctx, "cred-1", created.ID)
	assert.Equal(t, apperrors.ErrorTypeNotFound, apperrors.TypeOf(err))
}

func TestEngine_DownloadSnapshot_RequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending, err := env.store.Create(ctx, &types.Snapshot{
		OwnerID:   "owner-1",
		Kind:      types.KindFull,
		Status:    types.StatusPending,
		SizeLabel: "0 B",
	})
	require.NoError(t, err)

	_, err = env.engine.DownloadSnapshot(ctx, "cred-1", pending.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
}

func TestEngine_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.StartSnapshot(ctx, "cred-1", types.KindFull)
	require.NoError(t, err)
	env.engine.WaitForBuilds()

	stats, err := env.engine.Stats(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SnapshotCount)
	assert.Equal(t, retention.MaxSnapshotsPerOwner, stats.MaxSnapshots)
	assert.NotEqual(t, "0 B", stats.TotalSize)
}
