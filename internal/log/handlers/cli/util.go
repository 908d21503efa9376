package cli

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var ansiEscapes = regexp.MustCompile(`\x1B\[[0-9;]*[a-zA-Z]`)

// EscapeAwareRuneCountInString counts the runes in str ignoring the
// ANSI escape sequences used for colors.
func EscapeAwareRuneCountInString(str string) int {
	return utf8.RuneCountInString(ansiEscapes.ReplaceAllString(str, ""))
}

// RightPad pads str with spaces up to length visible runes.
func RightPad(str string, length int) string {
	count := EscapeAwareRuneCountInString(str)
	if count >= length {
		return str
	}
	return str + strings.Repeat(" ", length-count)
}
