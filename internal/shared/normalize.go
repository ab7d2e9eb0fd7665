package shared

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DurationBucketMS is the granularity of the duration component in composite keys.
const DurationBucketMS = 5000

const qualifierWords = `remaster(?:ed)?|deluxe|radio edit|radio version|bonus track|explicit|clean|mono|stereo|` +
	`single version|album version|anniversary|expanded|edition|feat\.?|ft\.?|featuring|with`

var (
	bracketQualifier = regexp.MustCompile(`\s*[\(\[][^\)\]]*\b(?:` + qualifierWords + `)\b[^\)\]]*[\)\]]`)
	dashQualifier    = regexp.MustCompile(`\s+-\s+[^-]*\b(?:` + qualifierWords + `)\b.*$`)
	inlineFeat       = regexp.MustCompile(`\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)
	artistSeparator  = regexp.MustCompile(`\s*(?:,|&|;|\s+feat\.?\s+|\s+ft\.?\s+|\s+featuring\s+)\s*`)
)

// FoldDiacritics strips combining marks so "Tiësto" and "Tiesto" compare equal.
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// StripEditionQualifiers removes "(Remastered 2011)", "- Radio Edit", "(feat. X)" style suffixes.
//
// The input is expected to be lowercased already.
func StripEditionQualifiers(s string) string {
	s = bracketQualifier.ReplaceAllString(s, "")
	s = dashQualifier.ReplaceAllString(s, "")
	s = inlineFeat.ReplaceAllString(s, "")
	return s
}

// NormalizeText lowercases, folds diacritics, strips edition qualifiers and punctuation, and collapses whitespace.
func NormalizeText(s string) string {
	s = strings.ToLower(FoldDiacritics(s))
	s = StripEditionQualifiers(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// "don't" and "dont" should compare equal
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// PrimaryArtist returns the first artist of a joined credit ("A & B", "A, B feat. C").
func PrimaryArtist(artist string) string {
	parts := artistSeparator.Split(strings.TrimSpace(artist), -1)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	return strings.TrimSpace(artist)
}

// TokenSet splits the normalized form of s into a set of words.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeText(s)) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b.
//
// Two empty inputs are identical (1.0); one empty input shares nothing (0.0).
func Jaccard(a, b string) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// AlbumsEqual reports whether two album names are identical after normalization.
func AlbumsEqual(a, b string) bool {
	na, nb := NormalizeText(a), NormalizeText(b)
	return na != "" && na == nb
}

// AlbumsOverlap reports a partial album match: one normalized name contains the other,
// or they share at least half of their words.
func AlbumsOverlap(a, b string) bool {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return Jaccard(na, nb) >= 0.5
}

// DurationBucket maps a duration onto its 5s bucket.
func DurationBucket(ms int) int {
	if ms <= 0 {
		return 0
	}
	return ms / DurationBucketMS
}

// WithinMS reports whether two durations differ by at most tolerance. Unknown (zero) durations never match.
func WithinMS(a, b, tolerance int) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// CompositeKey builds the content fingerprint name|artist|album|bucket used for duplicate detection.
//
// Only the primary artist participates, so differently ordered featured credits collapse to the same key.
func CompositeKey(name, artist, album string, durationMS int) string {
	return strings.Join([]string{
		NormalizeText(name),
		NormalizeText(PrimaryArtist(artist)),
		NormalizeText(album),
		strconv.Itoa(DurationBucket(durationMS)),
	}, "|")
}
