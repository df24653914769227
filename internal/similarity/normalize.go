package similarity

import (
	"regexp"
	"strings"
)

var (
	// Block comments are matched lazily so that two comments on one line
	// do not swallow the code between them.
	commentRegex    = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*|#[^\n]*`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize strips line and block comments, collapses whitespace runs to a
// single space and lowercases the text. Empty input normalizes to "".
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = commentRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(strings.ToLower(text))
}
