package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

var arabicFolds = map[rune]rune{
	'أ': 'ا',
	'إ': 'ا',
	'آ': 'ا',
	'ٱ': 'ا',
	'ة': 'ه',
	'ى': 'ي',
	'ؤ': 'و',
	'ئ': 'ي',
}

func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Normalize lowercases s, folds Arabic letter variants, drops diacritics and
// punctuation other than "-./", and collapses whitespace.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	if stripped, _, err := transform.String(stripMarks(), s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := arabicFolds[r]; ok {
			r = folded
		}
		switch {
		case r == tatweel:
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '.', r == '/':
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize normalizes the query and splits it on whitespace.
func Tokenize(query string) []string {
	return strings.Fields(Normalize(query))
}
