// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"regexp"
	"strings"
)

var markupTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>|\{\\[^}]*\}`)

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// CleanCaption strips inline caption markup (<i>, <font ...>, {\an8}) and collapses runs of
// whitespace, including newlines, into single spaces.
func CleanCaption(s string) string {
	s = markupTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
