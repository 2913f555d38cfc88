package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gosimple/slug"
)

// ManufacturerKey derives the manufacturer natural key from the
// identity fields. Slugifying first absorbs casing, punctuation and
// transliteration noise from source HTML; short keys stay
// human-legible, anything longer than 16 characters is replaced by its
// SHA-256 hex digest to bound key length.
func ManufacturerKey(trademark, fullName string) string {
	s := slug.Make(trademark + fullName)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	if len(s) > 16 {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}
	return s
}
