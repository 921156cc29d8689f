package grading

import "strings"

// Normalize canonicalizes a free-text answer for comparison: surrounding whitespace is
// trimmed and the text is lower-cased. Inner whitespace and punctuation are kept.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Match reports whether a submitted answer equals the correct one after normalization.
func Match(submitted, correct string) bool {
	return Normalize(submitted) == Normalize(correct)
}
