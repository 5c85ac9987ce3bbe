package utils

import (
	"strings"
	"unicode/utf8"
)

// TruncateText cuts text to at most maxChars runes, backing up to the last
// whitespace so that words are not split, unless that would drop more than
// a tenth of the allowance.
func TruncateText(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)[:maxChars]
	cut := string(runes)
	if i := strings.LastIndexFunc(cut, isSpace); i >= 0 && utf8.RuneCountInString(cut[:i]) >= maxChars-maxChars/10 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, isSpace)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
