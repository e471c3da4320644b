package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/pkg/types"
)

func TestGetProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me", r.URL.Path)
		assert.Equal(t, "cred-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "user-1",
			"username":    "kael",
			"global_name": "Kael",
			"bio":         "hello",
			"pronouns":    "they/them",
			"avatar":      "a_abc123",
			"banner":      "def456",
			"locale":      "en-US",
			"verified":    true,
		})
	}))
	defer server.Close()

	profile, err := testClient(server).GetProfile(context.Background(), "cred-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", profile.ID)
	assert.Equal(t, "kael", profile.Username)
	assert.Equal(t, "Kael", profile.DisplayName)
	assert.Equal(t, "a_abc123", profile.AvatarHash)
	assert.Equal(t, "def456", profile.BannerHash)
	assert.True(t, profile.Verified)
}

func TestGetProfile_BadCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server).GetProfile(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeUnauthenticated, apperrors.TypeOf(err))
}

func TestGetProfile_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server).GetProfile(context.Background(), "cred-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeExternalService, apperrors.TypeOf(err))
}

func TestGetSettings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me/settings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"theme": "dark", "locale": "en-US"})
	}))
	defer server.Close()

	settings, err := testClient(server).GetSettings(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "dark", settings.Values["theme"])
	assert.ElementsMatch(t, []string{"theme", "locale"}, settings.Keys())
}

func TestGetGuilds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/@me/guilds", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "g1", "name": "alpha", "owner": true},
			{"id": "g2", "name": "beta"},
		})
	}))
	defer server.Close()

	guilds, err := testClient(server).GetGuilds(context.Background(), "cred-1")
	require.NoError(t, err)
	require.Len(t, guilds, 2)
	assert.Equal(t, "alpha", guilds[0].Name)
	assert.True(t, guilds[0].Owner)
}

func TestGetSavedContent_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/@me/sticker-packs":
			w.WriteHeader(http.StatusInternalServerError)
		case "/users/@me/connections":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"type": "github", "name": "kael"}})
		}
	}))
	defer server.Close()

	saved := testClient(server).GetSavedContent(context.Background(), "cred-1")
	require.NotNil(t, saved)
	assert.Nil(t, saved.StickerPacks)
	require.Len(t, saved.Connections, 1)
	assert.Equal(t, "github", saved.Connections[0]["type"])
}

func TestDownloadMedia(t *testing.T) {
	avatarBytes := []byte("fake-image-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/avatars/user-1/a_abc123.gif":
			_, _ = w.Write(avatarBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	profile := &types.Profile{ID: "user-1", AvatarHash: "a_abc123", BannerHash: "def456"}
	media := testClient(server).DownloadMedia(context.Background(), profile)

	require.Contains(t, media, MediaAvatar)
	avatar := media[MediaAvatar]
	assert.Equal(t, types.MediaOK, avatar.Status)
	assert.Equal(t, "avatar.gif", avatar.Filename)
	assert.Equal(t, len(avatarBytes), avatar.Size)
	assert.Equal(t, base64.StdEncoding.EncodeToString(avatarBytes), avatar.Data)

	// A failed slot is recorded, never dropped.
	require.Contains(t, media, MediaBanner)
	banner := media[MediaBanner]
	assert.Equal(t, types.MediaUnavailable, banner.Status)
	assert.Contains(t, banner.Error, "404")
	assert.Empty(t, banner.Data)
}

func TestDownloadMedia_NoHashes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer server.Close()

	media := testClient(server).DownloadMedia(context.Background(), &types.Profile{ID: "user-1"})
	assert.Empty(t, media)
}

func TestMediaDataURI(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,QUJD",
		MediaDataURI(types.MediaItem{Filename: "avatar.png", Data: "QUJD"}))
	assert.Equal(t, "data:image/gif;base64,QUJD",
		MediaDataURI(types.MediaItem{Filename: "banner.gif", Data: "QUJD"}))
}
