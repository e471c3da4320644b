package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/restitch/internal/differ"
	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/internal/remote"
	"github.com/yairfalse/restitch/pkg/types"
)

// Restore reconciles live remote state toward a stored snapshot. It is
// synchronous end to end: field writes run strictly one at a time in a
// fixed order so the change list stays deterministic. Per-field write
// failures are recorded and do not abort the run; configuration-class
// failures (missing solver key, empty proxy pool) abort immediately.
func (e *Engine) Restore(ctx context.Context, credential, snapshotID, solverKey string, proxies []string) (*types.RestoreReport, error) {
	_, snap, err := e.ownedSnapshot(ctx, credential, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Status != types.StatusCompleted || snap.Payload == nil {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone,
			"snapshot is not completed and cannot be restored")
	}
	payload := snap.Payload
	log := e.log.WithField("snapshot", snap.ID)

	report := &types.RestoreReport{
		ProfileChanges:  []types.ChangeRecord{},
		ServerChanges:   types.MembershipDiff{ToJoin: []types.GuildRef{}, Differences: []types.GuildRef{}},
		SettingsChanges: []types.ChangeRecord{},
	}

	if payload.Profile != nil && snap.Kind.IncludesProfile() {
		current, err := e.reader.GetProfile(ctx, credential)
		if err != nil {
			return nil, err
		}
		changes, err := e.reconcileProfile(ctx, credential, payload, current, solverKey, proxies, log)
		if err != nil {
			return nil, err
		}
		report.ProfileChanges = changes
	}

	if payload.Memberships != nil && snap.Kind.IncludesMemberships() {
		currentGuilds, err := e.reader.GetGuilds(ctx, credential)
		if err != nil {
			return nil, err
		}
		report.ServerChanges = differ.Memberships(payload.Memberships, currentGuilds)
	}

	if payload.Settings != nil && snap.Kind.IncludesProfile() {
		report.SettingsChanges = differ.SettingsReview(payload.Settings)
	}

	report.Summarize(time.Now().UTC())
	log.WithField("total_changes", report.Summary.TotalChanges).Info("restore finished")
	return report, nil
}

// reconcileProfile issues one write per changed field. Exactly one write
// attempt per field; the writer itself owns the challenge retry.
func (e *Engine) reconcileProfile(ctx context.Context, credential string, payload *types.SnapshotPayload, current *types.Profile, solverKey string, proxies []string, log logger.Logger) ([]types.ChangeRecord, error) {
	changes := []types.ChangeRecord{}
	patches := remote.ProfilePatches(payload)

	for _, delta := range differ.ProfileDiff(payload.Profile, current) {
		patch, ok := patches[delta.Field]
		if !ok {
			// Media fields are only writable when the snapshot holds
			// the downloaded asset.
			changes = append(changes, types.ChangeRecord{
				Field:    delta.Field,
				OldValue: delta.OldValue,
				NewValue: delta.NewValue,
				Status:   types.ChangeFailed,
				Error:    fmt.Sprintf("snapshot holds no usable media for %q", delta.Field),
			})
			continue
		}

		err := e.writer.ApplyFieldUpdate(ctx, credential, patch, solverKey, proxies)
		if err != nil {
			if apperrors.IsConfigError(err) {
				// Configuration must be fixed before any write can
				// succeed; the remaining fields would hit the same wall.
				return nil, err
			}
			log.Error("field write failed", err)
			changes = append(changes, types.ChangeRecord{
				Field:    delta.Field,
				OldValue: delta.OldValue,
				NewValue: delta.NewValue,
				Status:   types.ChangeFailed,
				Error:    err.Error(),
			})
			continue
		}
		changes = append(changes, types.ChangeRecord{
			Field:    delta.Field,
			OldValue: delta.OldValue,
			NewValue: delta.NewValue,
			Status:   types.ChangeUpdated,
		})
	}
	return changes, nil
}
