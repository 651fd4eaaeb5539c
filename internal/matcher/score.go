package matcher

import (
	"github.com/agnivade/levenshtein"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/normalize"
)

// Weighted similarity per field. Duration acts as a tie-breaker: a flat
// 10-point penalty per second of mismatch, floored at zero.
const (
	titleWeight    = 0.40
	artistWeight   = 0.35
	albumWeight    = 0.15
	durationWeight = 0.10
)

// Score computes the weighted similarity between a source track and a
// search candidate, in [0,100]. Deterministic; no I/O.
func Score(src, candidate models.Track) float64 {
	titleSim := similarity(src.Title, candidate.Title)
	artistSim := similarity(src.PrimaryArtist(), candidate.PrimaryArtist())
	albumSim := albumSimilarity(src.Album, candidate.Album)
	durSim := durationSimilarity(src.DurationMS, candidate.DurationMS)

	return titleWeight*titleSim +
		artistWeight*artistSim +
		albumWeight*albumSim +
		durationWeight*durSim
}

// similarity is a levenshtein ratio over normalized strings, in [0,100].
func similarity(a, b string) float64 {
	na, nb := normalize.Text(a), normalize.Text(b)
	if na == nb {
		return 100
	}
	longest := max(len(na), len(nb))
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(na, nb)
	if dist >= longest {
		return 0
	}
	return 100 * (1 - float64(dist)/float64(longest))
}

// albumSimilarity treats a missing album on either side as neutral:
// platforms frequently omit album metadata in search results, and its
// absence is not evidence against a match.
func albumSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 100
	}
	return similarity(a, b)
}

// durationSimilarity applies the flat per-second penalty.
func durationSimilarity(aMS, bMS int) float64 {
	if aMS == 0 || bMS == 0 {
		return 100
	}
	deltaSec := float64(aMS-bMS) / 1000
	if deltaSec < 0 {
		deltaSec = -deltaSec
	}
	sim := 100 - 10*deltaSec
	if sim < 0 {
		return 0
	}
	return sim
}
