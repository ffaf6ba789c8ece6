package utils

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile("[^a-z0-9]+")

// Slugify lower-cases s and collapses every run of non-alphanumeric characters
// into a single underscore, trimming underscores at both ends.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
