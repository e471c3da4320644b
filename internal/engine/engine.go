// Package engine orchestrates snapshot creation, retention, and restore
// reconciliation over the store, remote service and challenge solver.
package engine

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/internal/remote"
	"github.com/yairfalse/restitch/internal/retention"
	"github.com/yairfalse/restitch/internal/session"
	"github.com/yairfalse/restitch/internal/snapshot"
	"github.com/yairfalse/restitch/internal/storage"
	"github.com/yairfalse/restitch/pkg/types"
)

// buildTimeout bounds one background snapshot build end to end.
const buildTimeout = 10 * time.Minute

// FieldWriter is the slice of the remote writer the engine needs.
type FieldWriter interface {
	ApplyFieldUpdate(ctx context.Context, credential string, patch remote.FieldPatch, solverKey string, proxies []string) error
}

// Engine exposes the snapshot and restore operations.
type Engine struct {
	store    storage.Store
	policy   *retention.Policy
	builder  *snapshot.Builder
	reader   snapshot.StateReader
	writer   FieldWriter
	sessions *session.Store
	log      logger.Logger

	// ownerMu serializes evict-then-create per owner so concurrent
	// creates cannot push an owner past the retention cap.
	mu      sync.Mutex
	ownerMu map[string]*sync.Mutex
	builds  sync.WaitGroup
}

// New creates an engine over its collaborators.
func New(store storage.Store, reader snapshot.StateReader, writer FieldWriter, sessions *session.Store, log logger.Logger) *Engine {
	return &Engine{
		store:    store,
		policy:   retention.NewPolicy(store),
		builder:  snapshot.NewBuilder(store, reader, log),
		reader:   reader,
		writer:   writer,
		sessions: sessions,
		log:      log.WithField("component", "engine"),
		ownerMu:  map[string]*sync.Mutex{},
	}
}

// Authenticate resolves a credential to its owner, caching the result in
// the session store.
func (e *Engine) Authenticate(ctx context.Context, credential string) (*session.Session, error) {
	if credential == "" {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone, "credential is required")
	}
	if sess, ok := e.sessions.Get(credential); ok {
		return sess, nil
	}
	profile, err := e.reader.GetProfile(ctx, credential)
	if err != nil {
		return nil, err
	}
	return e.sessions.Put(credential, profile.ID, profile.Username), nil
}

// StartSnapshot begins a snapshot build unless the owner is at the
// retention cap, in which case it refuses with a LimitReached error
// naming the eviction candidate. The build itself runs in the
// background; callers observe it by polling.
func (e *Engine) StartSnapshot(ctx context.Context, credential string, kind types.SnapshotKind) (*types.Snapshot, error) {
	return e.start(ctx, credential, kind, false)
}

// ConfirmAndStartSnapshot is the post-confirmation variant: when the
// owner is at the cap it evicts the oldest snapshot, then creates.
// There is no rollback if the create fails after eviction.
func (e *Engine) ConfirmAndStartSnapshot(ctx context.Context, credential string, kind types.SnapshotKind) (*types.Snapshot, error) {
	return e.start(ctx, credential, kind, true)
}

func (e *Engine) start(ctx context.Context, credential string, kind types.SnapshotKind, confirmed bool) (*types.Snapshot, error) {
	if !kind.IsValid() {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone, "invalid snapshot kind")
	}
	sess, err := e.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}

	lock := e.lockOwner(sess.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	check, err := e.policy.CheckLimit(ctx, sess.OwnerID)
	if err != nil {
		return nil, err
	}
	if !check.CanCreate {
		if !confirmed {
			return nil, apperrors.New(apperrors.ErrorTypeLimitReached, apperrors.ServiceNone,
				"snapshot limit reached; the oldest snapshot must be deleted to create a new one").
				WithOldest(&apperrors.EvictionCandidate{
					ID:        check.Oldest.ID,
					Kind:      check.Oldest.Kind.String(),
					CreatedAt: check.Oldest.CreatedAt.Format(time.RFC3339),
				})
		}
		e.log.WithFields(map[string]interface{}{
			"owner":   sess.OwnerID,
			"evicted": check.Oldest.ID,
		}).Info("evicting oldest snapshot to make room")
		if err := e.store.Delete(ctx, check.Oldest.ID); err != nil {
			return nil, err
		}
	}

	created, err := e.store.Create(ctx, &types.Snapshot{
		OwnerID:   sess.OwnerID,
		Kind:      kind,
		Status:    types.StatusPending,
		Progress:  0,
		SizeLabel: "0 B",
	})
	if err != nil {
		return nil, err
	}

	e.builds.Add(1)
	go func() {
		defer e.builds.Done()
		buildCtx, cancel := context.WithTimeout(context.Background(), buildTimeout)
		defer cancel()
		_ = e.builder.Run(buildCtx, created, credential)
	}()

	return created, nil
}

// WaitForBuilds blocks until all in-flight background builds finish.
func (e *Engine) WaitForBuilds() {
	e.builds.Wait()
}

// GetSnapshotStatus returns the snapshot if it belongs to the caller.
// Owner mismatch is indistinguishable from absence.
func (e *Engine) GetSnapshotStatus(ctx context.Context, credential, id string) (*types.Snapshot, error) {
	_, snap, err := e.ownedSnapshot(ctx, credential, id)
	return snap, err
}

// ListSnapshots returns the caller's snapshots, newest first.
func (e *Engine) ListSnapshots(ctx context.Context, credential string) ([]types.Snapshot, error) {
	sess, err := e.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	return e.store.List(ctx, sess.OwnerID)
}

// DeleteSnapshot removes one of the caller's snapshots.
func (e *Engine) DeleteSnapshot(ctx context.Context, credential, id string) error {
	_, snap, err := e.ownedSnapshot(ctx, credential, id)
	if err != nil {
		return err
	}
	return e.store.Delete(ctx, snap.ID)
}

// DownloadSnapshot returns the payload of a completed snapshot.
func (e *Engine) DownloadSnapshot(ctx context.Context, credential, id string) (*types.Snapshot, error) {
	_, snap, err := e.ownedSnapshot(ctx, credential, id)
	if err != nil {
		return nil, err
	}
	if snap.Status != types.StatusCompleted {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone,
			"snapshot is not completed and cannot be downloaded")
	}
	return snap, nil
}

func (e *Engine) ownedSnapshot(ctx context.Context, credential, id string) (*session.Session, *types.Snapshot, error) {
	if id == "" {
		return nil, nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone, "snapshot id is required")
	}
	sess, err := e.Authenticate(ctx, credential)
	if err != nil {
		return nil, nil, err
	}
	snap, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if snap == nil || snap.OwnerID != sess.OwnerID {
		return nil, nil, apperrors.NotFound("snapshot")
	}
	return sess, snap, nil
}

func (e *Engine) lockOwner(ownerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.ownerMu[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		e.ownerMu[ownerID] = lock
	}
	return lock
}
