// Package differ computes field-level and set-level differences between
// a stored snapshot and freshly read remote state.
package differ

import (
	"sort"
	"strings"

	"github.com/yairfalse/restitch/pkg/types"
)

// ProfileFields is the fixed set of reconcilable profile fields, in the
// order writes are attempted.
var ProfileFields = []string{"display_name", "bio", "pronouns", "avatar", "banner"}

// ProfileDelta is one detected profile difference: the snapshot holds a
// non-empty value that differs from the live one.
type ProfileDelta struct {
	Field    string
	OldValue string // live value
	NewValue string // snapshot value the restore will write back
}

// ProfileDiff compares the snapshot profile against the live profile
// field by field. A field counts as changed only when the snapshot value
// is non-empty and differs from the current value; diffing identical
// states yields nothing.
func ProfileDiff(snap, current *types.Profile) []ProfileDelta {
	if snap == nil || current == nil {
		return nil
	}

	values := func(p *types.Profile) map[string]string {
		return map[string]string{
			"display_name": p.DisplayName,
			"bio":          p.Bio,
			"pronouns":     p.Pronouns,
			"avatar":       p.AvatarHash,
			"banner":       p.BannerHash,
		}
	}
	snapVals, curVals := values(snap), values(current)

	var deltas []ProfileDelta
	for _, field := range ProfileFields {
		want := snapVals[field]
		if want == "" || want == curVals[field] {
			continue
		}
		deltas = append(deltas, ProfileDelta{
			Field:    field,
			OldValue: curVals[field],
			NewValue: want,
		})
	}
	return deltas
}

// Memberships computes the symmetric set difference over guild ids.
// ToJoin holds snapshot guilds missing from live membership (the engine
// never auto-joins); Differences holds guilds joined after the snapshot.
// The two halves never intersect.
func Memberships(snapGuilds, currentGuilds []types.Guild) types.MembershipDiff {
	diff := types.MembershipDiff{
		ToJoin:      []types.GuildRef{},
		Differences: []types.GuildRef{},
	}

	currentIDs := make(map[string]struct{}, len(currentGuilds))
	for _, g := range currentGuilds {
		currentIDs[g.ID] = struct{}{}
	}
	snapIDs := make(map[string]struct{}, len(snapGuilds))
	for _, g := range snapGuilds {
		snapIDs[g.ID] = struct{}{}
	}

	for _, g := range snapGuilds {
		if _, ok := currentIDs[g.ID]; !ok {
			diff.ToJoin = append(diff.ToJoin, types.GuildRef{
				ID:     g.ID,
				Name:   g.Name,
				Icon:   g.Icon,
				Detail: "not in current memberships, manual rejoin required",
			})
		}
	}
	for _, g := range currentGuilds {
		if _, ok := snapIDs[g.ID]; !ok {
			diff.Differences = append(diff.Differences, types.GuildRef{
				ID:     g.ID,
				Name:   g.Name,
				Icon:   g.Icon,
				Detail: "joined after the snapshot was created",
			})
		}
	}
	return diff
}

// SettingsReview is the settings comparison. Settings are an opaque
// document the service evolves freely, so this lists the captured keys
// for manual review instead of diffing field by field.
func SettingsReview(snap *types.AccountSettings) []types.ChangeRecord {
	keys := snap.Keys()
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return []types.ChangeRecord{{
		Field:  "settings",
		Status: types.ChangeManualReview,
		Detail: "captured setting keys: " + strings.Join(keys, ", "),
	}}
}
