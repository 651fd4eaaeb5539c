// Spotify [Platform] implementation.
//
// Response types follow https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPageLimit  = 50
	spotifyTrackChunk = 100
	spotifySaveChunk  = 50
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track object.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist object.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album object.
type SpotifyAlbum struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
}

// SpotifySimplePlaylist represents a playlist as returned in lists.
type SpotifySimplePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPage[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

type spotifyPlaylistItem struct {
	Track *SpotifyTrack `json:"track"`
}

type spotifySavedTrack struct {
	Track SpotifyTrack `json:"track"`
}

type spotifySavedAlbum struct {
	Album SpotifyAlbum `json:"album"`
}

// SpotifyClient implements [Platform] for the Spotify Web API, using
// [oauth2] for the token exchange and automatic refresh.
type SpotifyClient struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	retry      RetryPolicy
	apiBase    string
	userID     string
}

// NewSpotifyClient creates a Spotify client from configured credentials.
func NewSpotifyClient(creds shared.SpotifyConfig, retry RetryPolicy) (*SpotifyClient, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8888/callback"
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
			"user-library-read",
			"user-library-modify",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	client := &SpotifyClient{
		config:     config,
		httpClient: http.DefaultClient,
		retry:      retry,
	}

	if creds.AccessToken != "" {
		client.token = &oauth2.Token{AccessToken: creds.AccessToken}
	}

	return client, nil
}

// Kind identifies this client as the Spotify platform.
func (s *SpotifyClient) Kind() models.Platform { return models.PlatformSpotify }

// Name returns the platform display name.
func (s *SpotifyClient) Name() string { return "Spotify" }

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyClient) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Authenticate exchanges an authorization code for a token and installs
// the refreshing HTTP client.
func (s *SpotifyClient) Authenticate(ctx context.Context, authCode string) error {
	token, err := s.config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("%w: code exchange failed: %v", shared.ErrAuthFailed, err)
	}
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
	return nil
}

// Token returns the current OAuth2 token, or nil when unauthenticated.
func (s *SpotifyClient) Token() *oauth2.Token { return s.token }

// SetBaseClient overrides the HTTP client. Used in tests.
func (s *SpotifyClient) SetBaseClient(c *http.Client) { s.httpClient = c }

// SetAPIBase points the client at an alternate API root. Used in tests.
func (s *SpotifyClient) SetAPIBase(base string) { s.apiBase = base }

// doRequest performs one authenticated request with retry on transient
// failures, decoding a JSON response into result when non-nil.
func (s *SpotifyClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: spotify", shared.ErrNotAuthenticated)
	}

	base := s.apiBase
	if base == "" {
		base = spotifyBaseURL
	}
	apiURL := base + endpoint

	return s.retry.Do(ctx, func() error {
		var reader *bytes.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: spotify request failed: %v", shared.ErrPlatformUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiError("spotify", resp.StatusCode)
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
}

// FetchSnapshot retrieves the user's playlists, liked tracks, and saved
// albums as one point-in-time snapshot.
func (s *SpotifyClient) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{Platform: models.PlatformSpotify, TakenAt: time.Now().UTC()}

	playlists, err := s.userPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching spotify playlists: %w", err)
	}
	for _, sp := range playlists {
		members, err := s.playlistTracks(ctx, sp.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching spotify playlist %q: %w", sp.Name, err)
		}
		entity := &models.Entity{
			Kind:        models.KindPlaylist,
			Name:        sp.Name,
			Description: sp.Description,
			Members:     dedupeMembers(members),
		}
		entity.SetPlatformID(models.PlatformSpotify, sp.ID)
		snapshot.Entities = append(snapshot.Entities, entity)
	}

	liked, err := s.savedTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching spotify liked tracks: %w", err)
	}
	likedSet := &models.Entity{
		Kind:    models.KindLikedSet,
		Name:    SetEntityName(models.KindLikedSet),
		Members: dedupeMembers(liked),
	}
	likedSet.SetPlatformID(models.PlatformSpotify, SetEntityID(models.PlatformSpotify, models.KindLikedSet))
	snapshot.Entities = append(snapshot.Entities, likedSet)

	albums, err := s.savedAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching spotify saved albums: %w", err)
	}
	albumSet := &models.Entity{
		Kind:    models.KindAlbumSet,
		Name:    SetEntityName(models.KindAlbumSet),
		Members: dedupeMembers(albums),
	}
	albumSet.SetPlatformID(models.PlatformSpotify, SetEntityID(models.PlatformSpotify, models.KindAlbumSet))
	snapshot.Entities = append(snapshot.Entities, albumSet)

	return snapshot, nil
}

func (s *SpotifyClient) userPlaylists(ctx context.Context) ([]SpotifySimplePlaylist, error) {
	var all []SpotifySimplePlaylist
	for offset := 0; ; offset += spotifyPageLimit {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", spotifyPageLimit, offset)
		var page spotifyPage[SpotifySimplePlaylist]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Next == nil || len(page.Items) == 0 {
			return all, nil
		}
	}
}

func (s *SpotifyClient) playlistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var all []models.Track
	for offset := 0; ; offset += spotifyTrackChunk {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", playlistID, spotifyTrackChunk, offset)
		var page spotifyPage[spotifyPlaylistItem]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			// Local files and removed episodes come back with a nil track.
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			all = append(all, mapSpotifyTrack(*item.Track))
		}
		if page.Next == nil || len(page.Items) == 0 {
			return all, nil
		}
	}
}

func (s *SpotifyClient) savedTracks(ctx context.Context) ([]models.Track, error) {
	var all []models.Track
	for offset := 0; ; offset += spotifyPageLimit {
		endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", spotifyPageLimit, offset)
		var page spotifyPage[spotifySavedTrack]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			all = append(all, mapSpotifyTrack(item.Track))
		}
		if page.Next == nil || len(page.Items) == 0 {
			return all, nil
		}
	}
}

func (s *SpotifyClient) savedAlbums(ctx context.Context) ([]models.Track, error) {
	var all []models.Track
	for offset := 0; ; offset += spotifyPageLimit {
		endpoint := fmt.Sprintf("/me/albums?limit=%d&offset=%d", spotifyPageLimit, offset)
		var page spotifyPage[spotifySavedAlbum]
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			all = append(all, mapSpotifyAlbum(item.Album))
		}
		if page.Next == nil || len(page.Items) == 0 {
			return all, nil
		}
	}
}

// SearchByISRC looks up a catalog track by its ISRC.
func (s *SpotifyClient) SearchByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=1", url.QueryEscape("isrc:"+isrc))

	var response struct {
		Tracks spotifyPage[SpotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	if len(response.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%w: isrc %s not in spotify catalog", shared.ErrTrackNotFound, isrc)
	}

	track := mapSpotifyTrack(response.Tracks.Items[0])
	return &track, nil
}

// SearchByMetadata searches the catalog by artist and title.
func (s *SpotifyClient) SearchByMetadata(ctx context.Context, artist, title string) ([]models.Track, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=5", url.QueryEscape(query))

	var response struct {
		Tracks spotifyPage[SpotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, st := range response.Tracks.Items {
		tracks = append(tracks, mapSpotifyTrack(st))
	}
	return tracks, nil
}

// CreateEntity creates a playlist and returns its native id. Members
// are added separately via ReplaceMembers.
func (s *SpotifyClient) CreateEntity(ctx context.Context, entity *models.Entity) (string, error) {
	if entity.Kind != models.KindPlaylist {
		return "", fmt.Errorf("%w: cannot create a %s on spotify", shared.ErrInvalidInput, entity.Kind)
	}

	userID, err := s.currentUserID(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"name":        entity.Name,
		"description": entity.Description,
		"public":      false,
	}

	var created struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", fmt.Errorf("creating spotify playlist %q: %w", entity.Name, err)
	}
	return created.ID, nil
}

// ReplaceMembers overwrites a playlist's track list, or applies the
// add/remove delta for the liked and album sets.
func (s *SpotifyClient) ReplaceMembers(ctx context.Context, kind models.EntityKind, platformID string, members []models.Track) error {
	switch kind {
	case models.KindPlaylist:
		return s.replacePlaylistTracks(ctx, platformID, members)
	case models.KindLikedSet:
		current, err := s.savedTracks(ctx)
		if err != nil {
			return err
		}
		return s.applySetDelta(ctx, "/me/tracks", current, members)
	case models.KindAlbumSet:
		current, err := s.savedAlbums(ctx)
		if err != nil {
			return err
		}
		return s.applySetDelta(ctx, "/me/albums", current, members)
	default:
		return fmt.Errorf("%w: entity kind %q", shared.ErrInvalidInput, kind)
	}
}

func (s *SpotifyClient) replacePlaylistTracks(ctx context.Context, playlistID string, members []models.Track) error {
	uris := make([]string, 0, len(members))
	for _, t := range members {
		if id := t.PlatformID(models.PlatformSpotify); id != "" {
			uris = append(uris, "spotify:track:"+id)
		}
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	batches := chunk(uris, spotifyTrackChunk)
	if len(batches) == 0 {
		batches = [][]string{{}}
	}

	for i, batch := range batches {
		body := map[string]any{"uris": batch}
		// The first batch replaces; the rest append in order.
		method := http.MethodPost
		if i == 0 {
			method = http.MethodPut
		}
		if err := s.doRequest(ctx, method, endpoint, body, nil); err != nil {
			return fmt.Errorf("replacing spotify playlist tracks: %w", err)
		}
	}
	return nil
}

// applySetDelta reconciles a saved-item endpoint (/me/tracks or
// /me/albums) toward the desired member list, since those collections
// have no wholesale replace operation.
func (s *SpotifyClient) applySetDelta(ctx context.Context, endpoint string, current, desired []models.Track) error {
	currentIDs := make(map[string]string, len(current)) // identity -> native id
	for _, t := range current {
		currentIDs[t.Identity()] = t.PlatformID(models.PlatformSpotify)
	}
	desiredIdentities := make(map[string]struct{}, len(desired))

	var toAdd []string
	for _, t := range desired {
		id := t.Identity()
		desiredIdentities[id] = struct{}{}
		if _, have := currentIDs[id]; have {
			continue
		}
		if nativeID := t.PlatformID(models.PlatformSpotify); nativeID != "" {
			toAdd = append(toAdd, nativeID)
		}
	}

	var toRemove []string
	for identity, nativeID := range currentIDs {
		if _, keep := desiredIdentities[identity]; !keep && nativeID != "" {
			toRemove = append(toRemove, nativeID)
		}
	}

	for _, batch := range chunk(toAdd, spotifySaveChunk) {
		ep := fmt.Sprintf("%s?ids=%s", endpoint, url.QueryEscape(strings.Join(batch, ",")))
		if err := s.doRequest(ctx, http.MethodPut, ep, nil, nil); err != nil {
			return fmt.Errorf("saving spotify items: %w", err)
		}
	}
	for _, batch := range chunk(toRemove, spotifySaveChunk) {
		ep := fmt.Sprintf("%s?ids=%s", endpoint, url.QueryEscape(strings.Join(batch, ",")))
		if err := s.doRequest(ctx, http.MethodDelete, ep, nil, nil); err != nil {
			return fmt.Errorf("removing spotify items: %w", err)
		}
	}
	return nil
}

// UpdateEntityMeta applies name and description edits to a playlist.
func (s *SpotifyClient) UpdateEntityMeta(ctx context.Context, platformID string, meta *models.MetaDelta) error {
	if meta.Empty() {
		return nil
	}
	body := map[string]any{}
	if meta.Name != nil {
		body["name"] = *meta.Name
	}
	if meta.Description != nil {
		body["description"] = *meta.Description
	}
	endpoint := fmt.Sprintf("/playlists/%s", platformID)
	return s.doRequest(ctx, http.MethodPut, endpoint, body, nil)
}

// DeleteEntity unfollows a playlist, which removes it from the user's
// library. The liked and album sets cannot be deleted.
func (s *SpotifyClient) DeleteEntity(ctx context.Context, kind models.EntityKind, platformID string) error {
	if kind != models.KindPlaylist {
		return fmt.Errorf("%w: cannot delete the %s set", shared.ErrInvalidInput, kind)
	}
	endpoint := fmt.Sprintf("/playlists/%s/followers", platformID)
	return s.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (s *SpotifyClient) currentUserID(ctx context.Context) (string, error) {
	if s.userID != "" {
		return s.userID, nil
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return "", fmt.Errorf("fetching spotify profile: %w", err)
	}
	s.userID = user.ID
	return s.userID, nil
}

func mapSpotifyTrack(st SpotifyTrack) models.Track {
	track := models.Track{
		ISRC:       st.ExternalIDs.ISRC,
		Title:      st.Name,
		Album:      st.Album.Name,
		DurationMS: st.DurationMS,
	}
	for _, a := range st.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	return track.WithPlatformID(models.PlatformSpotify, st.ID)
}

// mapSpotifyAlbum models a saved album as a set member: the album name
// doubles as title and album so the metadata fingerprint stays stable
// across platforms.
func mapSpotifyAlbum(sa SpotifyAlbum) models.Track {
	track := models.Track{
		Title: sa.Name,
		Album: sa.Name,
	}
	for _, a := range sa.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	return track.WithPlatformID(models.PlatformSpotify, sa.ID)
}
