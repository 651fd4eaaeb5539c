// Apple Music [Platform] implementation.
//
// Library reads and mutations go through the /v1/me/library endpoints;
// catalog lookups (ISRC filter, search) go through the storefront
// catalog. Auth is a developer token plus a Music-User-Token header on
// every request.
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

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

const (
	appleBaseURL = "https://api.music.apple.com/v1"

	applePageLimit    = 100
	appleCatalogChunk = 300
)

// appleResource is the generic JSON:API-style resource wrapper Apple
// Music responses use.
type appleResource[A any] struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes A      `json:"attributes"`
}

type applePage[A any] struct {
	Data []appleResource[A] `json:"data"`
	Next string             `json:"next"`
}

// ApplePlaylistAttributes describes a library playlist.
type ApplePlaylistAttributes struct {
	Name        string `json:"name"`
	Description struct {
		Standard string `json:"standard"`
	} `json:"description"`
	CanEdit bool `json:"canEdit"`
}

// AppleSongAttributes describes a library or catalog song.
type AppleSongAttributes struct {
	Name             string `json:"name"`
	ArtistName       string `json:"artistName"`
	AlbumName        string `json:"albumName"`
	DurationInMillis int    `json:"durationInMillis"`
	ISRC             string `json:"isrc,omitempty"`
	PlayParams       struct {
		ID        string `json:"id"`
		CatalogID string `json:"catalogId"`
	} `json:"playParams"`
}

// AppleAlbumAttributes describes a library album.
type AppleAlbumAttributes struct {
	Name       string `json:"name"`
	ArtistName string `json:"artistName"`
	PlayParams struct {
		ID        string `json:"id"`
		CatalogID string `json:"catalogId"`
	} `json:"playParams"`
}

// AppleClient implements [Platform] for the Apple Music API.
type AppleClient struct {
	developerToken string
	userToken      string
	storefront     string
	httpClient     *http.Client
	retry          RetryPolicy
	apiBase        string
}

// NewAppleClient creates an Apple Music client from configured
// credentials. The user token may be supplied later via SetUserToken.
func NewAppleClient(creds shared.AppleConfig, retry RetryPolicy) (*AppleClient, error) {
	if creds.DeveloperToken == "" {
		return nil, fmt.Errorf("%w: apple developer_token is required", shared.ErrMissingCredentials)
	}
	storefront := creds.Storefront
	if storefront == "" {
		storefront = "us"
	}
	return &AppleClient{
		developerToken: creds.DeveloperToken,
		userToken:      creds.UserToken,
		storefront:     storefront,
		httpClient:     http.DefaultClient,
		retry:          retry,
	}, nil
}

// Kind identifies this client as the Apple Music platform.
func (a *AppleClient) Kind() models.Platform { return models.PlatformApple }

// Name returns the platform display name.
func (a *AppleClient) Name() string { return "Apple Music" }

// SetUserToken installs the Music-User-Token obtained through the
// MusicKit authorization flow.
func (a *AppleClient) SetUserToken(token string) { a.userToken = token }

// SetBaseClient overrides the HTTP client. Used in tests.
func (a *AppleClient) SetBaseClient(c *http.Client) { a.httpClient = c }

// SetAPIBase points the client at an alternate API root. Used in tests.
func (a *AppleClient) SetAPIBase(base string) { a.apiBase = base }

func (a *AppleClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	base := a.apiBase
	if base == "" {
		base = appleBaseURL
	}
	apiURL := base + endpoint

	// Library endpoints require the user token; catalog endpoints only
	// need the developer token.
	if strings.HasPrefix(endpoint, "/me/") && a.userToken == "" {
		return fmt.Errorf("%w: apple music user token missing", shared.ErrNotAuthenticated)
	}

	return a.retry.Do(ctx, func() error {
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
		req.Header.Set("Authorization", "Bearer "+a.developerToken)
		if a.userToken != "" {
			req.Header.Set("Music-User-Token", a.userToken)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: apple music request failed: %v", shared.ErrPlatformUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiError("apple music", resp.StatusCode)
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
}

// FetchSnapshot retrieves the user's library playlists, songs, and
// albums as one point-in-time snapshot. Library songs carry no ISRC, so
// the snapshot is hydrated with a batched catalog lookup afterwards.
func (a *AppleClient) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{Platform: models.PlatformApple, TakenAt: time.Now().UTC()}

	playlists, err := a.libraryPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching apple playlists: %w", err)
	}
	for _, pl := range playlists {
		members, err := a.playlistTracks(ctx, pl.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching apple playlist %q: %w", pl.Attributes.Name, err)
		}
		entity := &models.Entity{
			Kind:        models.KindPlaylist,
			Name:        pl.Attributes.Name,
			Description: pl.Attributes.Description.Standard,
			Members:     dedupeMembers(members),
		}
		entity.SetPlatformID(models.PlatformApple, pl.ID)
		snapshot.Entities = append(snapshot.Entities, entity)
	}

	songs, err := a.librarySongs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching apple library songs: %w", err)
	}
	likedSet := &models.Entity{
		Kind:    models.KindLikedSet,
		Name:    SetEntityName(models.KindLikedSet),
		Members: dedupeMembers(songs),
	}
	likedSet.SetPlatformID(models.PlatformApple, SetEntityID(models.PlatformApple, models.KindLikedSet))
	snapshot.Entities = append(snapshot.Entities, likedSet)

	albums, err := a.libraryAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching apple library albums: %w", err)
	}
	albumSet := &models.Entity{
		Kind:    models.KindAlbumSet,
		Name:    SetEntityName(models.KindAlbumSet),
		Members: dedupeMembers(albums),
	}
	albumSet.SetPlatformID(models.PlatformApple, SetEntityID(models.PlatformApple, models.KindAlbumSet))
	snapshot.Entities = append(snapshot.Entities, albumSet)

	if err := a.hydrateISRC(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("hydrating apple snapshot: %w", err)
	}

	return snapshot, nil
}

func (a *AppleClient) libraryPlaylists(ctx context.Context) ([]appleResource[ApplePlaylistAttributes], error) {
	var all []appleResource[ApplePlaylistAttributes]
	for offset := 0; ; offset += applePageLimit {
		endpoint := fmt.Sprintf("/me/library/playlists?limit=%d&offset=%d", applePageLimit, offset)
		var page applePage[ApplePlaylistAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if page.Next == "" || len(page.Data) == 0 {
			return all, nil
		}
	}
}

func (a *AppleClient) playlistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var all []models.Track
	for offset := 0; ; offset += applePageLimit {
		endpoint := fmt.Sprintf("/me/library/playlists/%s/tracks?limit=%d&offset=%d", playlistID, applePageLimit, offset)
		var page applePage[AppleSongAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Data {
			all = append(all, mapAppleSong(item))
		}
		if page.Next == "" || len(page.Data) == 0 {
			return all, nil
		}
	}
}

func (a *AppleClient) librarySongs(ctx context.Context) ([]models.Track, error) {
	var all []models.Track
	for offset := 0; ; offset += applePageLimit {
		endpoint := fmt.Sprintf("/me/library/songs?limit=%d&offset=%d", applePageLimit, offset)
		var page applePage[AppleSongAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Data {
			all = append(all, mapAppleSong(item))
		}
		if page.Next == "" || len(page.Data) == 0 {
			return all, nil
		}
	}
}

func (a *AppleClient) libraryAlbums(ctx context.Context) ([]models.Track, error) {
	var all []models.Track
	for offset := 0; ; offset += applePageLimit {
		endpoint := fmt.Sprintf("/me/library/albums?limit=%d&offset=%d", applePageLimit, offset)
		var page applePage[AppleAlbumAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Data {
			track := models.Track{
				Title:   item.Attributes.Name,
				Album:   item.Attributes.Name,
				Artists: []string{item.Attributes.ArtistName},
			}
			all = append(all, track.WithPlatformID(models.PlatformApple, item.ID))
		}
		if page.Next == "" || len(page.Data) == 0 {
			return all, nil
		}
	}
}

// hydrateISRC backfills ISRCs onto snapshot tracks by batching their
// catalog ids through the storefront songs endpoint. Library responses
// never include the ISRC directly.
func (a *AppleClient) hydrateISRC(ctx context.Context, snapshot *models.Snapshot) error {
	need := map[string][]*models.Track{} // catalog id -> tracks sharing it
	for _, entity := range snapshot.Entities {
		if entity.Kind == models.KindAlbumSet {
			continue
		}
		for i := range entity.Members {
			t := &entity.Members[i]
			if t.ISRC != "" {
				continue
			}
			if catalogID := t.PlatformID(models.PlatformApple); catalogID != "" {
				need[catalogID] = append(need[catalogID], t)
			}
		}
	}
	if len(need) == 0 {
		return nil
	}

	ids := make([]string, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}

	for _, batch := range chunk(ids, appleCatalogChunk) {
		endpoint := fmt.Sprintf("/catalog/%s/songs?ids=%s", a.storefront, url.QueryEscape(strings.Join(batch, ",")))
		var page applePage[AppleSongAttributes]
		if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return err
		}
		for _, item := range page.Data {
			for _, t := range need[item.ID] {
				t.ISRC = item.Attributes.ISRC
			}
		}
	}
	return nil
}

// SearchByISRC looks up a catalog song by its ISRC via the storefront
// filter endpoint.
func (a *AppleClient) SearchByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	endpoint := fmt.Sprintf("/catalog/%s/songs?filter[isrc]=%s", a.storefront, url.QueryEscape(isrc))

	var page applePage[AppleSongAttributes]
	if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, fmt.Errorf("%w: isrc %s not in apple catalog", shared.ErrTrackNotFound, isrc)
	}

	track := mapAppleCatalogSong(page.Data[0])
	return &track, nil
}

// SearchByMetadata searches the storefront catalog by artist and title.
func (a *AppleClient) SearchByMetadata(ctx context.Context, artist, title string) ([]models.Track, error) {
	term := fmt.Sprintf("%s %s", title, artist)
	endpoint := fmt.Sprintf("/catalog/%s/search?types=songs&limit=5&term=%s", a.storefront, url.QueryEscape(term))

	var response struct {
		Results struct {
			Songs applePage[AppleSongAttributes] `json:"songs"`
		} `json:"results"`
	}
	if err := a.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Results.Songs.Data))
	for _, item := range response.Results.Songs.Data {
		tracks = append(tracks, mapAppleCatalogSong(item))
	}
	return tracks, nil
}

type appleTrackRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// CreateEntity creates a library playlist with its initial track list
// and returns the library id.
func (a *AppleClient) CreateEntity(ctx context.Context, entity *models.Entity) (string, error) {
	if entity.Kind != models.KindPlaylist {
		return "", fmt.Errorf("%w: cannot create a %s on apple music", shared.ErrInvalidInput, entity.Kind)
	}

	body := map[string]any{
		"attributes": map[string]any{
			"name":        entity.Name,
			"description": entity.Description,
		},
		"relationships": map[string]any{
			"tracks": map[string]any{"data": appleTrackRefs(entity.Members)},
		},
	}

	var created applePage[ApplePlaylistAttributes]
	if err := a.doRequest(ctx, http.MethodPost, "/me/library/playlists", body, &created); err != nil {
		return "", fmt.Errorf("creating apple playlist %q: %w", entity.Name, err)
	}
	if len(created.Data) == 0 {
		return "", fmt.Errorf("apple music returned no playlist for %q", entity.Name)
	}
	return created.Data[0].ID, nil
}

// ReplaceMembers overwrites a playlist's track list, or applies the
// add/remove delta for the library song and album sets.
func (a *AppleClient) ReplaceMembers(ctx context.Context, kind models.EntityKind, platformID string, members []models.Track) error {
	switch kind {
	case models.KindPlaylist:
		endpoint := fmt.Sprintf("/me/library/playlists/%s/tracks", platformID)
		body := map[string]any{"data": appleTrackRefs(members)}
		if err := a.doRequest(ctx, http.MethodPut, endpoint, body, nil); err != nil {
			return fmt.Errorf("replacing apple playlist tracks: %w", err)
		}
		return nil
	case models.KindLikedSet:
		current, err := a.librarySongs(ctx)
		if err != nil {
			return err
		}
		return a.applyLibraryDelta(ctx, "songs", current, members)
	case models.KindAlbumSet:
		current, err := a.libraryAlbums(ctx)
		if err != nil {
			return err
		}
		return a.applyLibraryDelta(ctx, "albums", current, members)
	default:
		return fmt.Errorf("%w: entity kind %q", shared.ErrInvalidInput, kind)
	}
}

// applyLibraryDelta reconciles the user's library toward the desired
// member list for one resource type ("songs" or "albums").
func (a *AppleClient) applyLibraryDelta(ctx context.Context, resource string, current, desired []models.Track) error {
	currentIDs := make(map[string]string, len(current))
	for _, t := range current {
		currentIDs[t.Identity()] = t.PlatformID(models.PlatformApple)
	}
	desiredIdentities := make(map[string]struct{}, len(desired))

	var toAdd []string
	for _, t := range desired {
		id := t.Identity()
		desiredIdentities[id] = struct{}{}
		if _, have := currentIDs[id]; have {
			continue
		}
		if nativeID := t.PlatformID(models.PlatformApple); nativeID != "" {
			toAdd = append(toAdd, nativeID)
		}
	}

	if len(toAdd) > 0 {
		endpoint := fmt.Sprintf("/me/library?ids[%s]=%s", resource, url.QueryEscape(strings.Join(toAdd, ",")))
		if err := a.doRequest(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
			return fmt.Errorf("adding apple library %s: %w", resource, err)
		}
	}

	for identity, nativeID := range currentIDs {
		if _, keep := desiredIdentities[identity]; keep || nativeID == "" {
			continue
		}
		endpoint := fmt.Sprintf("/me/library/%s/%s", resource, nativeID)
		if err := a.doRequest(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
			return fmt.Errorf("removing apple library %s: %w", resource, err)
		}
	}
	return nil
}

// UpdateEntityMeta applies name and description edits to a library
// playlist.
func (a *AppleClient) UpdateEntityMeta(ctx context.Context, platformID string, meta *models.MetaDelta) error {
	if meta.Empty() {
		return nil
	}
	attributes := map[string]any{}
	if meta.Name != nil {
		attributes["name"] = *meta.Name
	}
	if meta.Description != nil {
		attributes["description"] = *meta.Description
	}
	endpoint := fmt.Sprintf("/me/library/playlists/%s", platformID)
	return a.doRequest(ctx, http.MethodPatch, endpoint, map[string]any{"attributes": attributes}, nil)
}

// DeleteEntity removes a library playlist.
func (a *AppleClient) DeleteEntity(ctx context.Context, kind models.EntityKind, platformID string) error {
	if kind != models.KindPlaylist {
		return fmt.Errorf("%w: cannot delete the %s set", shared.ErrInvalidInput, kind)
	}
	endpoint := fmt.Sprintf("/me/library/playlists/%s", platformID)
	return a.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
}

func appleTrackRefs(members []models.Track) []appleTrackRef {
	refs := make([]appleTrackRef, 0, len(members))
	for _, t := range members {
		if id := t.PlatformID(models.PlatformApple); id != "" {
			refs = append(refs, appleTrackRef{ID: id, Type: "songs"})
		}
	}
	return refs
}

// mapAppleSong maps a library song. The catalog id is preferred as the
// native id since it is what mutation and catalog endpoints accept.
func mapAppleSong(item appleResource[AppleSongAttributes]) models.Track {
	id := item.Attributes.PlayParams.CatalogID
	if id == "" {
		id = item.ID
	}
	track := models.Track{
		ISRC:       item.Attributes.ISRC,
		Title:      item.Attributes.Name,
		Artists:    []string{item.Attributes.ArtistName},
		Album:      item.Attributes.AlbumName,
		DurationMS: item.Attributes.DurationInMillis,
	}
	return track.WithPlatformID(models.PlatformApple, id)
}

func mapAppleCatalogSong(item appleResource[AppleSongAttributes]) models.Track {
	track := models.Track{
		ISRC:       item.Attributes.ISRC,
		Title:      item.Attributes.Name,
		Artists:    []string{item.Attributes.ArtistName},
		Album:      item.Attributes.AlbumName,
		DurationMS: item.Attributes.DurationInMillis,
	}
	return track.WithPlatformID(models.PlatformApple, item.ID)
}
