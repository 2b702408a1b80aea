// Package normalize canonicalizes identifying strings from the RFID and POS
// systems so they can be compared exactly. All functions are deterministic
// and side-effect free.
package normalize

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/assetlink-io/assetlink-engine/pkg/similarity"
)

// synonyms maps POS shorthand tokens to their canonical form. Applied after
// lower-casing, tokenization and singularization.
var synonyms = map[string]string{
	"tbl":  "table",
	"chr":  "chair",
	"seat": "chair",
	"rnd":  "round",
	"rect": "rectangular",
	"in":   "inch",
	"ft":   "foot",
	"qty":  "quantity",
}

// Identifier canonicalizes a serial number, tag id, or POS item number for
// exact matching: trimmed and upper-cased, embedded separators left intact.
func Identifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Name canonicalizes a display name for comparison: lower-cased, non-word
// characters stripped, whitespace collapsed, shorthand expanded through the
// synonym table, and tokens singularized.
func Name(s string) string {
	var b strings.Builder
	var prev rune
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// Split runs like "60in" into "60 in" so unit shorthand hits
			// the synonym table.
			if prev != 0 && unicode.IsDigit(prev) != unicode.IsDigit(r) {
				b.WriteRune(' ')
			}
			b.WriteRune(r)
			prev = r
		default:
			b.WriteRune(' ')
			prev = 0
		}
	}

	fields := strings.Fields(b.String())
	for i, tok := range fields {
		tok = inflection.Singular(tok)
		if canonical, ok := synonyms[tok]; ok {
			tok = canonical
		}
		fields[i] = tok
	}

	return strings.Join(fields, " ")
}

// NameSimilarity returns a symmetric similarity score in [0, 1] between two
// display names. Names that normalize identically score 1.0; otherwise the
// score is the edit-distance ratio of the normalized forms.
func NameSimilarity(a, b string) float64 {
	na, nb := Name(a), Name(b)
	if na == nb {
		return 1.0
	}
	return similarity.Ratio(na, nb)
}

// PhoneticKey returns the phonetic bucket key for a display name: the
// Metaphone encoding of the first token of the normalized name, or of the
// whole normalized name when it is a single token.
func PhoneticKey(s string) string {
	n := Name(s)
	if n == "" {
		return ""
	}
	if i := strings.IndexByte(n, ' '); i > 0 {
		n = n[:i]
	}
	return similarity.MetaphoneKey(n)
}
