package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint keys a text for result caching. Texts that differ only in
// Unicode normalization or surrounding whitespace share a key; a new
// prompt version invalidates every key.
func Fingerprint(text, version string) string {
	h := sha256.New()
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(norm.NFKC.String(text))))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
