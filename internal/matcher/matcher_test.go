package matcher

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// memCache is an in-memory Cache for tests.
type memCache struct {
	rows map[string]models.Track
}

func newMemCache() *memCache { return &memCache{rows: map[string]models.Track{}} }

func (c *memCache) Lookup(key string) (models.Track, bool, error) {
	t, ok := c.rows[key]
	return t, ok, nil
}

func (c *memCache) Store(key string, track models.Track, confidence int, method string) error {
	c.rows[key] = track
	return nil
}

// fakeCatalog is a scriptable Catalog.
type fakeCatalog struct {
	platform    models.Platform
	byISRC      map[string]models.Track
	searchHits  []models.Track
	isrcErr     error
	searchErr   error
	isrcCalls   int
	searchCalls int
}

func (f *fakeCatalog) Kind() models.Platform { return f.platform }

func (f *fakeCatalog) SearchByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	f.isrcCalls++
	if f.isrcErr != nil {
		return nil, f.isrcErr
	}
	if t, ok := f.byISRC[isrc]; ok {
		return &t, nil
	}
	return nil, shared.ErrTrackNotFound
}

func (f *fakeCatalog) SearchByMetadata(ctx context.Context, artist, title string) ([]models.Track, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchHits, nil
}

func appleTrack(id, isrc, title, artist, album string, durMS int) models.Track {
	return models.Track{
		ISRC:       isrc,
		IDs:        map[models.Platform]string{models.PlatformApple: id},
		Title:      title,
		Artists:    []string{artist},
		Album:      album,
		DurationMS: durMS,
	}
}

func srcTrack(isrc, title, artist, album string, durMS int) models.Track {
	return models.Track{
		ISRC:       isrc,
		IDs:        map[models.Platform]string{models.PlatformSpotify: "sp1"},
		Title:      title,
		Artists:    []string{artist},
		Album:      album,
		DurationMS: durMS,
	}
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("ISRC Match Ignores Metadata", func(t *testing.T) {
		catalog := &fakeCatalog{
			platform: models.PlatformApple,
			byISRC: map[string]models.Track{
				"USRC00000001": appleTrack("ap1", "USRC00000001", "Totally Different Title", "Other Artist", "", 999000),
			},
		}
		r := NewResolver(newMemCache())

		res, err := r.Resolve(ctx, srcTrack("USRC00000001", "Song", "Artist", "Album", 180000), catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Method != MethodISRC {
			t.Errorf("expected isrc method, got %s", res.Method)
		}
		if res.Confidence != 100 {
			t.Errorf("expected confidence 100, got %d", res.Confidence)
		}
		if res.Track.PlatformID(models.PlatformApple) != "ap1" {
			t.Errorf("expected apple id ap1, got %s", res.Track.PlatformID(models.PlatformApple))
		}
	})

	t.Run("Cache Hit Short Circuits", func(t *testing.T) {
		cache := newMemCache()
		cache.rows["USRC00000001"] = srcTrack("USRC00000001", "Song", "Artist", "", 0).
			WithPlatformID(models.PlatformApple, "ap1")

		catalog := &fakeCatalog{platform: models.PlatformApple, isrcErr: shared.ErrPlatformUnavailable}
		r := NewResolver(cache)

		res, err := r.Resolve(ctx, srcTrack("USRC00000001", "Song", "Artist", "", 0), catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Method != MethodCached || res.Confidence != 100 {
			t.Errorf("expected cached/100, got %s/%d", res.Method, res.Confidence)
		}
		if catalog.isrcCalls != 0 || catalog.searchCalls != 0 {
			t.Error("cache hit should not touch the catalog")
		}
	})

	t.Run("Cached Row Without Target ID Falls Through", func(t *testing.T) {
		cache := newMemCache()
		cache.rows["USRC00000001"] = srcTrack("USRC00000001", "Song", "Artist", "", 0)

		catalog := &fakeCatalog{
			platform: models.PlatformApple,
			byISRC: map[string]models.Track{
				"USRC00000001": appleTrack("ap1", "USRC00000001", "Song", "Artist", "", 0),
			},
		}
		r := NewResolver(cache)

		res, err := r.Resolve(ctx, srcTrack("USRC00000001", "Song", "Artist", "", 0), catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Method != MethodISRC {
			t.Errorf("expected isrc method, got %s", res.Method)
		}
	})

	t.Run("Fuzzy Exact Metadata Scores 100", func(t *testing.T) {
		// ISRC present on source but absent from the target's index:
		// falls through to metadata search per the strict priority order.
		catalog := &fakeCatalog{
			platform:   models.PlatformApple,
			searchHits: []models.Track{appleTrack("ap9", "", "Song", "Artist", "Album", 180000)},
		}
		r := NewResolver(newMemCache())

		res, err := r.Resolve(ctx, srcTrack("USRC00000001", "Song", "Artist", "Album", 180000), catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Method != MethodFuzzy {
			t.Fatalf("expected fuzzy method, got %s", res.Method)
		}
		if res.Confidence != 100 {
			t.Errorf("expected confidence 100, got %d", res.Confidence)
		}
		if catalog.isrcCalls != 1 {
			t.Errorf("expected one isrc attempt before fuzzy, got %d", catalog.isrcCalls)
		}
	})

	t.Run("Below Threshold Is No Match Not Error", func(t *testing.T) {
		catalog := &fakeCatalog{
			platform:   models.PlatformApple,
			searchHits: []models.Track{appleTrack("ap2", "", "Entirely Unrelated", "Nobody", "Nothing", 10000)},
		}
		cache := newMemCache()
		r := NewResolver(cache)

		res, err := r.Resolve(ctx, srcTrack("", "Song", "Artist", "Album", 180000), catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Method != MethodNone || res.Track != nil {
			t.Errorf("expected no match, got %s", res.Method)
		}
		if len(cache.rows) != 0 {
			t.Error("rejected results must not be cached")
		}
	})

	t.Run("Ambiguous Candidates Are No Match", func(t *testing.T) {
		dup := appleTrack("ap3", "", "Song", "Artist", "Album", 180000)
		dup2 := appleTrack("ap4", "", "Song", "Artist", "Album", 180000)
		catalog := &fakeCatalog{platform: models.PlatformApple, searchHits: []models.Track{dup, dup2}}
		r := NewResolver(newMemCache())

		res, err := r.Resolve(ctx, srcTrack("", "Song", "Artist", "Album", 180000), catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Method != MethodNone {
			t.Errorf("equal-scored candidates should resolve to no match, got %s", res.Method)
		}
	})

	t.Run("Transient Failure Is An Error", func(t *testing.T) {
		catalog := &fakeCatalog{platform: models.PlatformApple, isrcErr: shared.ErrRateLimited}
		r := NewResolver(newMemCache())

		_, err := r.Resolve(ctx, srcTrack("USRC00000001", "Song", "Artist", "", 0), catalog)
		if err == nil {
			t.Fatal("expected error for rate-limited lookup")
		}
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected wrapped ErrRateLimited, got %v", err)
		}
	})

	t.Run("Accepted Match Is Cached For Next Resolve", func(t *testing.T) {
		catalog := &fakeCatalog{
			platform:   models.PlatformApple,
			searchHits: []models.Track{appleTrack("ap5", "", "Song", "Artist", "Album", 180000)},
		}
		cache := newMemCache()
		r := NewResolver(cache)
		src := srcTrack("", "Song", "Artist", "Album", 180000)

		first, err := r.Resolve(ctx, src, catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Method != MethodFuzzy {
			t.Fatalf("expected fuzzy, got %s", first.Method)
		}

		second, err := r.Resolve(ctx, src, catalog)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.Method != MethodCached || second.Confidence != 100 {
			t.Errorf("expected cached/100 on second resolve, got %s/%d", second.Method, second.Confidence)
		}
		if catalog.searchCalls != 1 {
			t.Errorf("expected a single search, got %d", catalog.searchCalls)
		}
	})
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore(t *testing.T) {
	t.Run("Identical Tracks", func(t *testing.T) {
		a := srcTrack("", "Song", "Artist", "Album", 180000)
		b := appleTrack("x", "", "Song", "Artist", "Album", 180000)
		if got := Score(a, b); !approxEqual(got, 100) {
			t.Errorf("Score() = %v, want 100", got)
		}
	})

	t.Run("Duration Penalty", func(t *testing.T) {
		a := srcTrack("", "Song", "Artist", "Album", 180000)
		b := appleTrack("x", "", "Song", "Artist", "Album", 183000)
		// 3 seconds off: duration component drops from 100 to 70,
		// weighted 0.10, so the total drops by 3 points.
		if got := Score(a, b); !approxEqual(got, 97) {
			t.Errorf("Score() = %v, want 97", got)
		}
	})

	t.Run("Duration Floor", func(t *testing.T) {
		a := srcTrack("", "Song", "Artist", "Album", 180000)
		b := appleTrack("x", "", "Song", "Artist", "Album", 300000)
		if got := Score(a, b); !approxEqual(got, 90) {
			t.Errorf("duration penalty should floor at zero: Score() = %v, want 90", got)
		}
	})

	t.Run("Missing Album Is Neutral", func(t *testing.T) {
		a := srcTrack("", "Song", "Artist", "Album", 180000)
		b := appleTrack("x", "", "Song", "Artist", "", 180000)
		if got := Score(a, b); !approxEqual(got, 100) {
			t.Errorf("Score() = %v, want 100", got)
		}
	})

	t.Run("Normalization Applies", func(t *testing.T) {
		a := srcTrack("", "Song (Live)", "Beyoncé", "", 0)
		b := appleTrack("x", "", "Song Live", "Beyonce", "", 0)
		if got := Score(a, b); !approxEqual(got, 100) {
			t.Errorf("Score() = %v, want 100", got)
		}
	})
}
