// package normalize provides deterministic text canonicalization for
// cross-platform track matching.
//
// Streaming platforms disagree on casing, accents, punctuation, and
// version qualifiers ("Song (Live)", "Song - Remastered 2011"). All
// matching keys go through [Text] so those differences collapse before
// comparison.
package normalize

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
)

// Qualifiers are removed wherever they appear, not just in parenthesized
// suffixes, so "Song (Live)" and "Song Live" produce the same canonical
// form. Phrases are stripped before single tokens so "album version"
// disappears without touching the word "album" elsewhere.
var (
	qualifierPhrases = []string{"radio edit", "album version"}
	qualifierTokens  = map[string]struct{}{
		"remaster":   {},
		"remastered": {},
		"explicit":   {},
		"live":       {},
		"feat":       {},
		"ft":         {},
	}
)

// Text returns the canonical form of s: lower-cased, transliterated to
// ASCII, punctuation stripped, whitespace collapsed, and version
// qualifier tokens removed. Pure and total; empty input yields "".
func Text(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(unidecode.Unidecode(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	s = strings.Join(strings.Fields(b.String()), " ")

	for _, phrase := range qualifierPhrases {
		s = strings.ReplaceAll(s, phrase, " ")
	}

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, drop := qualifierTokens[f]; drop {
			continue
		}
		kept = append(kept, f)
	}

	return strings.Join(kept, " ")
}

// TrackKey builds a canonical "title|artist" comparison key.
func TrackKey(title, artist string) string {
	return Text(title) + "|" + Text(artist)
}

// Fingerprint builds a synthetic identity for tracks without an ISRC,
// from normalized artist, title, and album.
func Fingerprint(artist, title, album string) string {
	return Text(artist) + "|" + Text(title) + "|" + Text(album)
}
