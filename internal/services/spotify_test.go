package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

func testSpotifyClient(t *testing.T, handler http.Handler) *SpotifyClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewSpotifyClient(shared.SpotifyConfig{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		AccessToken:  "test_access_token",
	}, RetryPolicy{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	client.SetAPIBase(server.URL)
	client.SetBaseClient(server.Client())
	return client
}

func TestSpotifyClient(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("Missing Credentials", func(t *testing.T) {
			_, err := NewSpotifyClient(shared.SpotifyConfig{ClientID: "id"}, DefaultRetryPolicy())
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected missing credentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			client, err := NewSpotifyClient(shared.SpotifyConfig{
				ClientID:     "id",
				ClientSecret: "secret",
			}, DefaultRetryPolicy())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if client.config.RedirectURL != "http://localhost:8888/callback" {
				t.Errorf("unexpected redirect URI %s", client.config.RedirectURL)
			}
		})
	})

	t.Run("AuthURL Contains State And Client ID", func(t *testing.T) {
		client, err := NewSpotifyClient(shared.SpotifyConfig{
			ClientID:     "test_client_id",
			ClientSecret: "secret",
		}, DefaultRetryPolicy())
		if err != nil {
			t.Fatal(err)
		}

		authURL := client.AuthURL("test_state")
		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL missing %q: %s", want, authURL)
			}
		}
	})

	t.Run("Unauthenticated Request Fails", func(t *testing.T) {
		client, err := NewSpotifyClient(shared.SpotifyConfig{
			ClientID:     "id",
			ClientSecret: "secret",
		}, RetryPolicy{MaxAttempts: 1})
		if err != nil {
			t.Fatal(err)
		}

		_, err = client.SearchByISRC(t.Context(), "USUM71703861")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected not authenticated, got %v", err)
		}
	})

	t.Run("FetchSnapshot Maps All Collections", func(t *testing.T) {
		client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case r.URL.Path == "/me/playlists":
				json.NewEncoder(w).Encode(map[string]any{
					"items": []map[string]any{{
						"id":          "pl1",
						"name":        "Road Trip",
						"description": "windows down",
					}},
				})
			case r.URL.Path == "/playlists/pl1/tracks":
				json.NewEncoder(w).Encode(map[string]any{
					"items": []map[string]any{
						{"track": map[string]any{
							"id":           "t1",
							"name":         "Go Your Own Way",
							"artists":      []map[string]any{{"name": "Fleetwood Mac"}},
							"album":        map[string]any{"name": "Rumours"},
							"duration_ms":  218000,
							"external_ids": map[string]any{"isrc": "GBAAA7700010"},
						}},
						{"track": nil}, // local file
					},
				})
			case r.URL.Path == "/me/tracks":
				json.NewEncoder(w).Encode(map[string]any{
					"items": []map[string]any{{"track": map[string]any{
						"id":   "t2",
						"name": "Dreams",
					}}},
				})
			case r.URL.Path == "/me/albums":
				json.NewEncoder(w).Encode(map[string]any{
					"items": []map[string]any{{"album": map[string]any{
						"id":      "al1",
						"name":    "Rumours",
						"artists": []map[string]any{{"name": "Fleetwood Mac"}},
					}}},
				})
			default:
				t.Errorf("unexpected request: %s %s", r.Method, r.URL)
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		snapshot, err := client.FetchSnapshot(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if snapshot.Platform != models.PlatformSpotify {
			t.Errorf("platform = %q", snapshot.Platform)
		}
		if len(snapshot.Entities) != 3 {
			t.Fatalf("expected 3 entities, got %d", len(snapshot.Entities))
		}

		playlist := snapshot.Entities[0]
		if playlist.Kind != models.KindPlaylist || playlist.Name != "Road Trip" {
			t.Errorf("unexpected playlist entity %+v", playlist)
		}
		if len(playlist.Members) != 1 {
			t.Fatalf("nil track should be skipped, got %d members", len(playlist.Members))
		}
		got := playlist.Members[0]
		if got.ISRC != "GBAAA7700010" || got.PlatformID(models.PlatformSpotify) != "t1" {
			t.Errorf("unexpected member %+v", got)
		}

		if id := snapshot.Entities[1].PlatformID(models.PlatformSpotify); id != "spotify:liked" {
			t.Errorf("liked set id = %q", id)
		}
		if id := snapshot.Entities[2].PlatformID(models.PlatformSpotify); id != "spotify:albums" {
			t.Errorf("album set id = %q", id)
		}
	})

	t.Run("SearchByISRC", func(t *testing.T) {
		t.Run("Found", func(t *testing.T) {
			client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("q"); got != "isrc:GBAAA7700010" {
					t.Errorf("query = %q", got)
				}
				json.NewEncoder(w).Encode(map[string]any{
					"tracks": map[string]any{
						"items": []map[string]any{{
							"id":           "t1",
							"name":         "Go Your Own Way",
							"external_ids": map[string]any{"isrc": "GBAAA7700010"},
						}},
					},
				})
			}))

			track, err := client.SearchByISRC(t.Context(), "GBAAA7700010")
			if err != nil {
				t.Fatal(err)
			}
			if track.PlatformID(models.PlatformSpotify) != "t1" {
				t.Errorf("unexpected track %+v", track)
			}
		})

		t.Run("Absent Is Track Not Found", func(t *testing.T) {
			client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"tracks": map[string]any{"items": []any{}}})
			}))

			_, err := client.SearchByISRC(t.Context(), "GBAAA0000000")
			if !errors.Is(err, shared.ErrTrackNotFound) {
				t.Errorf("expected track not found, got %v", err)
			}
		})
	})

	t.Run("Status Codes Map To Sentinels", func(t *testing.T) {
		cases := []struct {
			status int
			want   error
		}{
			{http.StatusUnauthorized, shared.ErrNotAuthenticated},
			{http.StatusNotFound, shared.ErrEntityNotFound},
			{http.StatusTooManyRequests, shared.ErrRateLimited},
			{http.StatusBadGateway, shared.ErrPlatformUnavailable},
		}
		for _, tc := range cases {
			client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			_, err := client.SearchByISRC(t.Context(), "GBAAA7700010")
			if !errors.Is(err, tc.want) {
				t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
			}
		}
	})

	t.Run("ReplaceMembers", func(t *testing.T) {
		t.Run("Playlist Replace Sends URIs", func(t *testing.T) {
			var gotMethod string
			var gotBody struct {
				URIs []string `json:"uris"`
			}
			client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/playlists/pl1/tracks" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				gotMethod = r.Method
				json.NewDecoder(r.Body).Decode(&gotBody)
				w.WriteHeader(http.StatusCreated)
			}))

			members := []models.Track{
				models.Track{Title: "Dreams"}.WithPlatformID(models.PlatformSpotify, "t2"),
				{Title: "Unresolved"}, // no native id yet, skipped
			}
			if err := client.ReplaceMembers(t.Context(), models.KindPlaylist, "pl1", members); err != nil {
				t.Fatal(err)
			}
			if gotMethod != http.MethodPut {
				t.Errorf("method = %s, want PUT", gotMethod)
			}
			if len(gotBody.URIs) != 1 || gotBody.URIs[0] != "spotify:track:t2" {
				t.Errorf("uris = %v", gotBody.URIs)
			}
		})

		t.Run("Liked Set Applies Delta", func(t *testing.T) {
			var saved, removed []string
			client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.URL.Path == "/me/tracks" && r.Method == http.MethodGet:
					json.NewEncoder(w).Encode(map[string]any{
						"items": []map[string]any{{"track": map[string]any{
							"id": "old", "name": "Old Song", "external_ids": map[string]any{"isrc": "ISRCOLD"},
						}}},
					})
				case r.URL.Path == "/me/tracks" && r.Method == http.MethodPut:
					saved = append(saved, r.URL.Query().Get("ids"))
				case r.URL.Path == "/me/tracks" && r.Method == http.MethodDelete:
					removed = append(removed, r.URL.Query().Get("ids"))
				default:
					t.Errorf("unexpected request: %s %s", r.Method, r.URL)
				}
			}))

			desired := []models.Track{
				models.Track{ISRC: "ISRCNEW", Title: "New Song"}.WithPlatformID(models.PlatformSpotify, "new"),
			}
			if err := client.ReplaceMembers(t.Context(), models.KindLikedSet, "spotify:liked", desired); err != nil {
				t.Fatal(err)
			}
			if len(saved) != 1 || saved[0] != "new" {
				t.Errorf("saved = %v", saved)
			}
			if len(removed) != 1 || removed[0] != "old" {
				t.Errorf("removed = %v", removed)
			}
		})
	})

	t.Run("DeleteEntity Refuses Sets", func(t *testing.T) {
		client := testSpotifyClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		err := client.DeleteEntity(t.Context(), models.KindLikedSet, "spotify:liked")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})
}
