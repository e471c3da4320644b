// Package snapshot builds snapshot payloads from live remote state,
// driving the record through pending -> running -> completed/failed.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/internal/storage"
	"github.com/yairfalse/restitch/pkg/types"
)

// StateReader is the slice of the remote client the builder needs.
type StateReader interface {
	GetProfile(ctx context.Context, credential string) (*types.Profile, error)
	GetSettings(ctx context.Context, credential string) (*types.AccountSettings, error)
	GetGuilds(ctx context.Context, credential string) ([]types.Guild, error)
	GetSavedContent(ctx context.Context, credential string) *types.SavedContent
	DownloadMedia(ctx context.Context, p *types.Profile) types.MediaSet
}

// Builder assembles snapshot payloads.
type Builder struct {
	store  storage.Store
	remote StateReader
	log    logger.Logger
	now    func() time.Time
}

// NewBuilder creates a snapshot builder.
func NewBuilder(store storage.Store, remote StateReader, log logger.Logger) *Builder {
	return &Builder{
		store:  store,
		remote: remote,
		log:    log.WithField("component", "builder"),
		now:    time.Now,
	}
}

// Run executes one build for an already-created snapshot record. Errors
// are captured into the record as status=failed rather than returned;
// callers observe the outcome by polling the store. The returned error
// is only for callers that run builds synchronously (the scheduler).
func (b *Builder) Run(ctx context.Context, snap *types.Snapshot, credential string) error {
	log := b.log.WithFields(map[string]interface{}{"snapshot": snap.ID, "kind": snap.Kind.String()})

	payload, err := b.assemble(ctx, snap, credential, log)
	if err != nil {
		log.Error("snapshot build failed", err)
		b.markFailed(snap.ID, log)
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error("snapshot payload not serializable", err)
		b.markFailed(snap.ID, log)
		return err
	}
	size := types.SizeLabelFor(len(raw))
	if err := b.advance(ctx, snap.ID, 90); err != nil {
		b.markFailed(snap.ID, log)
		return err
	}

	_, err = b.store.Update(ctx, snap.ID, storage.Update{
		Status:    storage.StatusOf(types.StatusCompleted),
		Progress:  storage.ProgressOf(100),
		SizeLabel: &size,
		Payload:   payload,
	})
	if err != nil {
		log.Error("failed to persist completed snapshot", err)
		b.markFailed(snap.ID, log)
		return err
	}
	log.WithField("size", size).Info("snapshot completed")
	return nil
}

// assemble walks the progress ladder. The primary profile fetch is
// fatal; media and saved-content fetches are best-effort.
func (b *Builder) assemble(ctx context.Context, snap *types.Snapshot, credential string, log logger.Logger) (*types.SnapshotPayload, error) {
	if err := b.advance(ctx, snap.ID, 10); err != nil {
		return nil, err
	}

	profile, err := b.remote.GetProfile(ctx, credential)
	if err != nil {
		return nil, err
	}
	if err := b.advance(ctx, snap.ID, 20); err != nil {
		return nil, err
	}

	payload := &types.SnapshotPayload{
		Kind:       snap.Kind,
		CapturedAt: b.now().UTC(),
	}

	if snap.Kind.IncludesProfile() {
		payload.Profile = profile
		payload.Media = b.remote.DownloadMedia(ctx, profile)

		// Settings and saved content are best-effort; only the primary
		// profile fetch is fatal for the build.
		settings, err := b.remote.GetSettings(ctx, credential)
		if err != nil {
			log.Error("settings fetch failed, capturing snapshot without settings", err)
		} else {
			payload.Settings = settings
		}
		payload.SavedContent = b.remote.GetSavedContent(ctx, credential)
		if err := b.advance(ctx, snap.ID, 40); err != nil {
			return nil, err
		}
	}

	if snap.Kind.IncludesMemberships() {
		guilds, err := b.remote.GetGuilds(ctx, credential)
		if err != nil {
			return nil, err
		}
		payload.Memberships = guilds
		if err := b.advance(ctx, snap.ID, 70); err != nil {
			return nil, err
		}
	}

	return payload, nil
}

func (b *Builder) advance(ctx context.Context, id string, progress int) error {
	_, err := b.store.Update(ctx, id, storage.Update{
		Status:   storage.StatusOf(types.StatusRunning),
		Progress: storage.ProgressOf(progress),
	})
	return err
}

// markFailed transitions the record to failed/0. It runs on a fresh
// context so a cancelled build still records its failure.
func (b *Builder) markFailed(id string, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := b.store.Update(ctx, id, storage.Update{
		Status:   storage.StatusOf(types.StatusFailed),
		Progress: storage.ProgressOf(0),
	})
	if err != nil {
		log.Error("failed to mark snapshot as failed", err)
	}
}
