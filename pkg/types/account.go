package types

// Profile is the remote account's profile as read from the account service.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Pronouns    string `json:"pronouns"`
	AvatarHash  string `json:"avatar_hash"`
	BannerHash  string `json:"banner_hash"`
	AccentColor int    `json:"accent_color"`
	Locale      string `json:"locale"`
	Email       string `json:"email,omitempty"`
	Verified    bool   `json:"verified"`
	MFAEnabled  bool   `json:"mfa_enabled"`
	PremiumType int    `json:"premium_type"`
	Flags       int    `json:"flags"`
}

// Guild is one entry in the account's membership list.
type Guild struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Owner bool   `json:"owner,omitempty"`
}

// AccountSettings is an opaque settings document. The remote service
// evolves this shape freely, so it is stored as-is and never diffed
// field-by-field.
type AccountSettings struct {
	Values map[string]any `json:"values"`
}

// Keys returns the sorted-insensitive list of setting keys present.
func (s *AccountSettings) Keys() []string {
	if s == nil || s.Values == nil {
		return nil
	}
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	return keys
}

// Clone creates a shallow copy of the settings document.
func (s *AccountSettings) Clone() *AccountSettings {
	if s == nil {
		return nil
	}
	clone := &AccountSettings{Values: make(map[string]any, len(s.Values))}
	for k, v := range s.Values {
		clone.Values[k] = v
	}
	return clone
}

// SavedContent holds the best-effort capture of sticker packs,
// favorites and external connections.
type SavedContent struct {
	StickerPacks []map[string]any `json:"sticker_packs,omitempty"`
	Favorites    []map[string]any `json:"favorites,omitempty"`
	Connections  []map[string]any `json:"connections,omitempty"`
}

// MediaStatus tags the outcome of one media download inside a snapshot.
type MediaStatus string

const (
	MediaOK          MediaStatus = "ok"
	MediaUnavailable MediaStatus = "unavailable"
)

// MediaItem is one downloaded media asset (avatar or banner),
// base64-encoded for storage. A failed download is recorded with
// MediaUnavailable rather than aborting the snapshot.
type MediaItem struct {
	Filename string      `json:"filename"`
	Size     int         `json:"size"`
	Data     string      `json:"data,omitempty"`
	Status   MediaStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// MediaSet maps media slot names ("avatar", "banner") to items.
type MediaSet map[string]MediaItem
