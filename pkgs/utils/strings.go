package utils

import (
	"regexp"
	"strings"
)

var (
	reControlChars = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)
	reSpaces       = regexp.MustCompile(`\s+`)
	reUnsafePath   = regexp.MustCompile(`[/\\:*?"<>|]+`)
)

// NormalizeString collapses whitespace and strips invisible characters.
func NormalizeString(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = reControlChars.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SanitizeFilename makes s safe to embed as a single path segment of an
// object key. Path separators and shell-hostile characters collapse to a
// single underscore; the result is never empty.
func SanitizeFilename(s string) string {
	s = NormalizeString(s)
	s = reUnsafePath.ReplaceAllString(s, "_")
	s = strings.Trim(s, ". ")
	if s == "" {
		return "untitled"
	}
	return s
}

// Mask hides the middle of a secret, keeping short secrets fully hidden.
func Mask(pwd string) string {
	if len(pwd) <= 10 {
		return strings.Repeat("●", len(pwd))
	}
	return pwd[:5] + strings.Repeat("●", min(len(pwd)-10, 10)) + pwd[len(pwd)-5:]
}
