package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SnapshotKind controls which sections of account state a snapshot captures.
type SnapshotKind string

const (
	// KindFull captures profile, media, settings, saved content and memberships.
	KindFull SnapshotKind = "full"
	// KindMemberships captures the guild membership list only.
	KindMemberships SnapshotKind = "memberships"
	// KindSettings captures profile, media and account settings.
	KindSettings SnapshotKind = "settings"
)

// IsValid checks if the SnapshotKind is valid
func (k SnapshotKind) IsValid() bool {
	switch k {
	case KindFull, KindMemberships, KindSettings:
		return true
	default:
		return false
	}
}

// String returns the string representation of SnapshotKind
func (k SnapshotKind) String() string {
	return string(k)
}

// IncludesProfile reports whether snapshots of this kind carry profile,
// media and settings sections.
func (k SnapshotKind) IncludesProfile() bool {
	return k == KindFull || k == KindSettings
}

// IncludesMemberships reports whether snapshots of this kind carry the
// guild membership list.
func (k SnapshotKind) IncludesMemberships() bool {
	return k == KindFull || k == KindMemberships
}

// SnapshotStatus tracks a snapshot through its build lifecycle.
type SnapshotStatus string

const (
	StatusPending   SnapshotStatus = "pending"
	StatusRunning   SnapshotStatus = "running"
	StatusCompleted SnapshotStatus = "completed"
	StatusFailed    SnapshotStatus = "failed"
)

// IsValid checks if the SnapshotStatus is valid
func (s SnapshotStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a final state; pollers must
// stop once a snapshot reaches a terminal status.
func (s SnapshotStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the string representation of SnapshotStatus
func (s SnapshotStatus) String() string {
	return string(s)
}

// Snapshot is a persisted point-in-time capture of remote-account state.
type Snapshot struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	Kind      SnapshotKind     `json:"kind"`
	Status    SnapshotStatus   `json:"status"`
	Progress  int              `json:"progress"`
	SizeLabel string           `json:"size_label"`
	Payload   *SnapshotPayload `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SnapshotPayload is the assembled account document. It is non-nil
// exactly when the owning snapshot is completed.
type SnapshotPayload struct {
	Kind         SnapshotKind     `json:"kind"`
	CapturedAt   time.Time        `json:"captured_at"`
	Profile      *Profile         `json:"profile,omitempty"`
	Media        MediaSet         `json:"media,omitempty"`
	Settings     *AccountSettings `json:"settings,omitempty"`
	SavedContent *SavedContent    `json:"saved_content,omitempty"`
	Memberships  []Guild          `json:"memberships,omitempty"`
}

// Validate checks if the Snapshot has all required fields and valid values
func (s *Snapshot) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("snapshot ID is required")
	}
	if strings.TrimSpace(s.OwnerID) == "" {
		return errors.New("snapshot owner ID is required")
	}
	if !s.Kind.IsValid() {
		return fmt.Errorf("invalid snapshot kind: %s", s.Kind)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid snapshot status: %s", s.Status)
	}
	if s.Progress < 0 || s.Progress > 100 {
		return fmt.Errorf("snapshot progress out of range: %d", s.Progress)
	}
	if s.Status == StatusCompleted && s.Payload == nil {
		return errors.New("completed snapshot must carry a payload")
	}
	if s.Status != StatusCompleted && s.Payload != nil {
		return errors.New("payload is only valid on a completed snapshot")
	}
	if s.Status == StatusCompleted && s.Progress != 100 {
		return errors.New("completed snapshot must have progress 100")
	}
	return nil
}

// Clone creates a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	clone := *s
	if s.Payload != nil {
		p := *s.Payload
		if s.Payload.Profile != nil {
			prof := *s.Payload.Profile
			p.Profile = &prof
		}
		if s.Payload.Settings != nil {
			p.Settings = s.Payload.Settings.Clone()
		}
		if s.Payload.Media != nil {
			p.Media = make(MediaSet, len(s.Payload.Media))
			for k, v := range s.Payload.Media {
				p.Media[k] = v
			}
		}
		if s.Payload.Memberships != nil {
			p.Memberships = append([]Guild(nil), s.Payload.Memberships...)
		}
		clone.Payload = &p
	}
	return &clone
}

// SizeLabelFor renders a human-readable size label for a serialized
// payload length.
func SizeLabelFor(byteLen int) string {
	const mb = 1024 * 1024
	switch {
	case byteLen >= mb:
		return fmt.Sprintf("%.2f MB", float64(byteLen)/float64(mb))
	case byteLen >= 1024:
		return fmt.Sprintf("%.1f KB", float64(byteLen)/1024)
	default:
		return fmt.Sprintf("%d B", byteLen)
	}
}

// String returns a string representation of the snapshot
func (s *Snapshot) String() string {
	return fmt.Sprintf("%s snapshot %s (%s, %d%%)", s.Kind, s.ID, s.Status, s.Progress)
}
