package normalizer

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var reSpaces = regexp.MustCompile(`\s+`)

// Romanize transliterates a name to lower-case ASCII so that "江西",
// "Jiangxi" and "jiāngxī" compare on the same alphabet.
func Romanize(s string) string {
	s = strings.ToLower(unidecode.Unidecode(StripDiacritics(Canonical(s))))
	return reSpaces.ReplaceAllString(strings.TrimSpace(s), "")
}
