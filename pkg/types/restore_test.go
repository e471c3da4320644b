package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChangeRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  ChangeRecord
		wantErr bool
	}{
		{
			name:   "updated field",
			record: ChangeRecord{Field: "bio", Status: ChangeUpdated},
		},
		{
			name:   "failed with error",
			record: ChangeRecord{Field: "avatar", Status: ChangeFailed, Error: "write rejected"},
		},
		{
			name:    "failed without error",
			record:  ChangeRecord{Field: "avatar", Status: ChangeFailed},
			wantErr: true,
		},
		{
			name:    "empty field",
			record:  ChangeRecord{Status: ChangeUpdated},
			wantErr: true,
		},
		{
			name:    "bad status",
			record:  ChangeRecord{Field: "bio", Status: "skipped"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRestoreReport_Summarize(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	report := RestoreReport{
		ProfileChanges: []ChangeRecord{
			{Field: "bio", Status: ChangeUpdated},
			{Field: "avatar", Status: ChangeFailed, Error: "nope"},
		},
		ServerChanges: MembershipDiff{
			ToJoin:      []GuildRef{{ID: "g1", Name: "alpha"}},
			Differences: []GuildRef{{ID: "g2", Name: "beta"}},
		},
		SettingsChanges: []ChangeRecord{
			{Field: "settings", Status: ChangeManualReview},
		},
	}

	report.Summarize(now)

	// Differences are informational and do not count toward totals.
	assert.Equal(t, 4, report.Summary.TotalChanges)
	assert.Equal(t, 2, report.Summary.ProfileUpdates)
	assert.Equal(t, 1, report.Summary.GuildsToRejoin)
	assert.Equal(t, 1, report.Summary.SettingsUpdates)
	assert.Equal(t, now, report.Summary.Timestamp)
}
