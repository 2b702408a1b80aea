// Package similarity provides the string-comparison primitives used for
// duplicate detection and mismatch grading. All functions are pure.
package similarity

import (
	"strings"
	"unicode"
)

// Ratio returns a normalized edit-distance similarity in [0, 1].
// Identical strings score 1.0; the function is symmetric in its arguments.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Distance(a, b))/float64(maxLen)
}

// Distance returns the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// MetaphoneKey returns a simplified Metaphone encoding of str, used to bucket
// names so similar-name scans stay near-linear instead of pairwise over the
// whole correlation set.
func MetaphoneKey(str string) string {
	str = strings.ToUpper(str)

	var letters strings.Builder
	for _, char := range str {
		if unicode.IsLetter(char) && char < 128 {
			letters.WriteRune(char)
		}
	}
	str = letters.String()
	if str == "" {
		return ""
	}

	var key strings.Builder
	prevCode := byte(0)
	for i := 0; i < len(str) && key.Len() < 6; i++ {
		code := metaphoneCode(str[i], i, str)
		if code != 0 && code != prevCode {
			key.WriteByte(code)
			prevCode = code
		}
	}

	return key.String()
}

// metaphoneCode returns the Metaphone code for one character of word.
func metaphoneCode(char byte, pos int, word string) byte {
	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		return 'B'
	case 'C':
		if pos+1 < len(word) && (word[pos+1] == 'I' || word[pos+1] == 'E' || word[pos+1] == 'Y') {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'F':
		return 'F'
	case 'G':
		return 'J'
	case 'H':
		return 0 // usually silent
	case 'J':
		return 'J'
	case 'K':
		return 'K'
	case 'L':
		return 'L'
	case 'M':
		return 'M'
	case 'N':
		return 'N'
	case 'P':
		if pos+1 < len(word) && word[pos+1] == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'R':
		return 'R'
	case 'S':
		return 'S'
	case 'T':
		return 'T'
	case 'V':
		return 'F'
	case 'W', 'X', 'Y', 'Z':
		if char == 'X' || char == 'Z' {
			return 'S'
		}
		return 0
	default:
		return 0
	}
}
