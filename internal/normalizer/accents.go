package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Canonical folds a geographic name into the form used for matching:
// NFKC, half-width, no whitespace or zero-width runes.
func Canonical(s string) string {
	t := transform.Chain(norm.NFKC, width.Narrow, transform.RemoveFunc(isSpaceOrFormat))
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return out
}

// StripDiacritics removes combining marks, e.g. for pinyin with tones.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, _ := transform.String(t, s)
	return out
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

func isSpaceOrFormat(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Cf, r)
}
