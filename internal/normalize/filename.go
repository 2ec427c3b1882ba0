// Package normalize turns archive strings into filesystem-safe names and
// parses the free-form, OCR-damaged dates printed on result pages.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	separatorPattern = regexp.MustCompile(`[\s'"]`)
	unsafePattern    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// Filename folds s to a lowercase ASCII token usable as a file or directory
// name: accents are stripped, whitespace and quotes become underscores and
// anything else outside [a-z0-9_-] is dropped.
func Filename(s string) string {
	folded := FoldASCII(s)
	folded = separatorPattern.ReplaceAllString(folded, "_")
	folded = unsafePattern.ReplaceAllString(folded, "")
	return strings.ToLower(folded)
}

// FoldASCII decomposes s (NFKD), removes combining marks and drops any rune
// that is still outside ASCII.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(t, s)
	if err != nil {
		decomposed = s
	}
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
