package tenant

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength bounds generated slugs.
const MaxSlugLength = 63

// Slugify derives a URL-safe slug from an organization name: diacritics are folded to ASCII,
// runs of other characters collapse to one "-", and the result is at most MaxSlugLength long.
func Slugify(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastWasSep := true
	for _, r := range strings.ToLower(folded) {
		if b.Len() >= MaxSlugLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			b.WriteByte('-')
			lastWasSep = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
