// package matcher resolves track identity across platform catalogs.
//
// Resolution runs in strict priority order, short-circuiting on first
// success: match cache, ISRC catalog lookup, then metadata search with
// weighted fuzzy scoring. Accepted matches are written back to the cache
// so later cycles skip the network entirely.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/normalize"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// Method names how a match was produced.
type Method string

const (
	MethodCached Method = "cached"
	MethodISRC   Method = "isrc"
	MethodFuzzy  Method = "fuzzy"
	MethodNone   Method = "none"
)

const (
	// AcceptThreshold is the minimum weighted score for a fuzzy match.
	AcceptThreshold = 85.0

	// ambiguityMargin is the minimum lead the best fuzzy candidate must
	// hold over the runner-up. Two near-equal candidates are treated as
	// no-match rather than risking a mis-sync.
	ambiguityMargin = 1.0

	// searchLimit bounds how many metadata search candidates are scored.
	searchLimit = 5
)

// MatchResult is the outcome of one resolution attempt. Track is nil
// when Method is MethodNone.
type MatchResult struct {
	Track      *models.Track
	Confidence int
	Method     Method
}

// Catalog is the platform client surface the resolver needs. Both
// lookups distinguish transient failures (error) from legitimate absence
// (shared.ErrTrackNotFound / empty slice).
type Catalog interface {
	Kind() models.Platform
	SearchByISRC(ctx context.Context, isrc string) (*models.Track, error)
	SearchByMetadata(ctx context.Context, artist, title string) ([]models.Track, error)
}

// Cache is the injected match store. Implementations persist accepted
// resolutions across cycles; the resolver never caches rejections, so
// future runs retry as the remote catalog changes.
type Cache interface {
	Lookup(key string) (models.Track, bool, error)
	Store(key string, track models.Track, confidence int, method string) error
}

// Resolver resolves tracks from one platform to their counterparts on
// another. Safe for concurrent use when the Cache is.
type Resolver struct {
	cache Cache
}

// NewResolver creates a Resolver backed by the given match cache.
func NewResolver(cache Cache) *Resolver {
	return &Resolver{cache: cache}
}

// CacheKey returns the cache key for a source track: its ISRC when
// present, else the synthetic metadata fingerprint.
func CacheKey(t models.Track) string {
	if t.ISRC != "" {
		return t.ISRC
	}
	return normalize.Fingerprint(t.PrimaryArtist(), t.Title, t.Album)
}

// Resolve finds src's counterpart in the target catalog.
//
// A nil-track result with MethodNone means the track is legitimately
// absent (or ambiguous) on the target; a non-nil error means the lookup
// itself failed and may be retried.
func (r *Resolver) Resolve(ctx context.Context, src models.Track, catalog Catalog) (MatchResult, error) {
	target := catalog.Kind()
	key := CacheKey(src)

	if cached, ok, err := r.cache.Lookup(key); err != nil {
		return MatchResult{}, fmt.Errorf("cache lookup failed: %w", err)
	} else if ok && cached.PlatformID(target) != "" {
		out := cached
		return MatchResult{Track: &out, Confidence: 100, Method: MethodCached}, nil
	}

	if src.ISRC != "" {
		found, err := catalog.SearchByISRC(ctx, src.ISRC)
		switch {
		case err == nil && found != nil:
			merged := mergeMatch(src, *found, target)
			if err := r.cache.Store(key, merged, 100, string(MethodISRC)); err != nil {
				return MatchResult{}, fmt.Errorf("cache store failed: %w", err)
			}
			return MatchResult{Track: &merged, Confidence: 100, Method: MethodISRC}, nil
		case err != nil && !errors.Is(err, shared.ErrTrackNotFound):
			return MatchResult{}, fmt.Errorf("isrc lookup on %s failed: %w", target, err)
		}
		// Absent from the ISRC index is not an error; fall through to
		// metadata search.
	}

	candidates, err := catalog.SearchByMetadata(ctx, src.PrimaryArtist(), src.Title)
	if err != nil {
		return MatchResult{}, fmt.Errorf("metadata search on %s failed: %w", target, err)
	}
	if len(candidates) > searchLimit {
		candidates = candidates[:searchLimit]
	}

	best, bestScore, runnerUp := pickBest(src, candidates)
	if best == nil || bestScore < AcceptThreshold {
		return MatchResult{Track: nil, Confidence: int(math.Round(bestScore)), Method: MethodNone}, nil
	}
	if bestScore-runnerUp < ambiguityMargin && runnerUp >= AcceptThreshold {
		// Multiple equally plausible candidates: conservative no-match.
		return MatchResult{Track: nil, Confidence: int(math.Round(bestScore)), Method: MethodNone}, nil
	}

	merged := mergeMatch(src, *best, target)
	confidence := int(math.Round(bestScore))
	if err := r.cache.Store(key, merged, confidence, string(MethodFuzzy)); err != nil {
		return MatchResult{}, fmt.Errorf("cache store failed: %w", err)
	}
	return MatchResult{Track: &merged, Confidence: confidence, Method: MethodFuzzy}, nil
}

// pickBest scores every candidate against src and returns the winner,
// its score, and the runner-up score (0 when fewer than two candidates).
func pickBest(src models.Track, candidates []models.Track) (*models.Track, float64, float64) {
	var (
		best      *models.Track
		bestScore float64
		runnerUp  float64
	)
	for i := range candidates {
		s := Score(src, candidates[i])
		switch {
		case best == nil || s > bestScore:
			if best != nil {
				runnerUp = bestScore
			}
			best = &candidates[i]
			bestScore = s
		case s > runnerUp:
			runnerUp = s
		}
	}
	return best, bestScore, runnerUp
}

// mergeMatch folds a found counterpart into the source track: platform
// ids union, ISRC filled from whichever side has it. The merged value is
// what gets cached, so one row answers lookups in both directions.
func mergeMatch(src, found models.Track, target models.Platform) models.Track {
	out := src
	ids := make(map[models.Platform]string, len(src.IDs)+1)
	for k, v := range src.IDs {
		ids[k] = v
	}
	if id := found.PlatformID(target); id != "" {
		ids[target] = id
	}
	out.IDs = ids
	if out.ISRC == "" {
		out.ISRC = found.ISRC
	}
	return out
}
