// Package textfold normalizes Vietnamese text for matching and for use in
// file names.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns the caseless NFC form of s, trimmed, so precomposed and
// decomposed spellings of the same name compare equal.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Contains reports whether needle occurs in haystack ignoring case.
// Diacritics are significant: "nguyen" does not match "Nguyễn".
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// EqualFold reports whether a and b are equal ignoring case.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}

// ASCII strips combining marks and maps đ/Đ, turning "Nguyễn Văn Đạt" into
// "Nguyen Van Dat".
func ASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
}

// FileToken renders s as a file-name safe token: ASCII letters, digits,
// '-' and '_' only, spaces removed.
func FileToken(s string) string {
	var b strings.Builder
	for _, r := range ASCII(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
