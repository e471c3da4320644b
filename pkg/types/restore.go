package types

import (
	"fmt"
	"time"
)

// ChangeStatus is the outcome of one reconciliation attempt.
type ChangeStatus string

const (
	// ChangeUpdated means the corrective write succeeded.
	ChangeUpdated ChangeStatus = "updated"
	// ChangeFailed means the corrective write was attempted and failed.
	ChangeFailed ChangeStatus = "failed"
	// ChangeManualReview means no automatic write is possible for this
	// category and the caller must act on it manually.
	ChangeManualReview ChangeStatus = "needs_manual_review"
)

// IsValid checks if the ChangeStatus is valid
func (c ChangeStatus) IsValid() bool {
	switch c {
	case ChangeUpdated, ChangeFailed, ChangeManualReview:
		return true
	default:
		return false
	}
}

// ChangeRecord is one reported outcome of reconciling a single field or
// category during restore. Records are transient; they are never persisted.
type ChangeRecord struct {
	Field    string       `json:"field"`
	OldValue string       `json:"old_value,omitempty"`
	NewValue string       `json:"new_value,omitempty"`
	Status   ChangeStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

// Validate checks if the ChangeRecord has all required fields
func (c *ChangeRecord) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("change record field cannot be empty")
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid change status: %s", c.Status)
	}
	if c.Status == ChangeFailed && c.Error == "" {
		return fmt.Errorf("failed change must carry an error")
	}
	return nil
}

// GuildRef is a guild named in a membership diff.
type GuildRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon,omitempty"`
	Detail string `json:"detail"`
}

// MembershipDiff is the symmetric set difference between snapshot and
// live guild memberships. ToJoin holds guilds present only in the
// snapshot (manual rejoin required; the engine never auto-joins).
// Differences holds guilds joined after the snapshot, informational only.
type MembershipDiff struct {
	ToJoin      []GuildRef `json:"to_join"`
	Differences []GuildRef `json:"differences"`
}

// RestoreSummary totals one restore run per category.
type RestoreSummary struct {
	TotalChanges    int       `json:"total_changes"`
	ProfileUpdates  int       `json:"profile_updates"`
	GuildsToRejoin  int       `json:"guilds_to_rejoin"`
	SettingsUpdates int       `json:"settings_updates"`
	Timestamp       time.Time `json:"timestamp"`
}

// RestoreReport aggregates every change detected and attempted during a
// single restore run.
type RestoreReport struct {
	ProfileChanges  []ChangeRecord `json:"profile_changes"`
	ServerChanges   MembershipDiff `json:"server_changes"`
	SettingsChanges []ChangeRecord `json:"settings_changes"`
	Summary         RestoreSummary `json:"summary"`
}

// Summarize fills the summary block from the recorded changes.
func (r *RestoreReport) Summarize(now time.Time) {
	r.Summary = RestoreSummary{
		TotalChanges:    len(r.ProfileChanges) + len(r.ServerChanges.ToJoin) + len(r.SettingsChanges),
		ProfileUpdates:  len(r.ProfileChanges),
		GuildsToRejoin:  len(r.ServerChanges.ToJoin),
		SettingsUpdates: len(r.SettingsChanges),
		Timestamp:       now,
	}
}
