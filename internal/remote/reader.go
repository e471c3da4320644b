package remote

import (
	"context"

	"github.com/yairfalse/restitch/pkg/types"
)

// wireProfile is the account service's profile shape.
type wireProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	GlobalName  string `json:"global_name"`
	Bio         string `json:"bio"`
	Pronouns    string `json:"pronouns"`
	Avatar      string `json:"avatar"`
	Banner      string `json:"banner"`
	AccentColor int    `json:"accent_color"`
	Locale      string `json:"locale"`
	Email       string `json:"email"`
	Verified    bool   `json:"verified"`
	MFAEnabled  bool   `json:"mfa_enabled"`
	PremiumType int    `json:"premium_type"`
	Flags       int    `json:"flags"`
}

func (w *wireProfile) toProfile() *types.Profile {
	return &types.Profile{
		ID:          w.ID,
		Username:    w.Username,
		DisplayName: w.GlobalName,
		Bio:         w.Bio,
		Pronouns:    w.Pronouns,
		AvatarHash:  w.Avatar,
		BannerHash:  w.Banner,
		AccentColor: w.AccentColor,
		Locale:      w.Locale,
		Email:       w.Email,
		Verified:    w.Verified,
		MFAEnabled:  w.MFAEnabled,
		PremiumType: w.PremiumType,
		Flags:       w.Flags,
	}
}

// GetProfile fetches the authenticated account's profile. This is the
// primary read; failures here abort a snapshot build.
func (c *Client) GetProfile(ctx context.Context, credential string) (*types.Profile, error) {
	var wire wireProfile
	if err := c.get(ctx, credential, "/users/@me", &wire); err != nil {
		return nil, err
	}
	return wire.toProfile(), nil
}

// GetSettings fetches account settings as an opaque document.
func (c *Client) GetSettings(ctx context.Context, credential string) (*types.AccountSettings, error) {
	values := map[string]any{}
	if err := c.get(ctx, credential, "/users/@me/settings", &values); err != nil {
		return nil, err
	}
	return &types.AccountSettings{Values: values}, nil
}

// GetGuilds fetches the account's guild membership list.
func (c *Client) GetGuilds(ctx context.Context, credential string) ([]types.Guild, error) {
	var guilds []types.Guild
	if err := c.get(ctx, credential, "/users/@me/guilds", &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

// GetSavedContent fetches sticker packs, favorites and connections.
// Every sub-fetch is best-effort: a failure leaves that section nil.
func (c *Client) GetSavedContent(ctx context.Context, credential string) *types.SavedContent {
	saved := &types.SavedContent{}

	var stickers struct {
		Packs []map[string]any `json:"sticker_packs"`
	}
	if err := c.get(ctx, credential, "/users/@me/sticker-packs", &stickers); err != nil {
		c.log.WithField("section", "sticker_packs").Warn("saved-content fetch failed, skipping")
	} else {
		saved.StickerPacks = stickers.Packs
	}

	var connections []map[string]any
	if err := c.get(ctx, credential, "/users/@me/connections", &connections); err != nil {
		c.log.WithField("section", "connections").Warn("saved-content fetch failed, skipping")
	} else {
		saved.Connections = connections
	}

	return saved
}
