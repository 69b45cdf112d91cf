package common

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyTag = errors.New("tag cannot be empty")
	nonTagChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Tag builds a ticketing tag from an optional prefix and a name, e.g.
// Tag("triage", "Sentiment Angry") == "triage-sentiment-angry".
// Both Help Scout tags and GitLab labels accept the result unchanged.
func Tag(prefix, name string) (string, error) {
	n := normalize(name)
	if n == "" {
		return "", ErrEmptyTag
	}
	if p := normalize(prefix); p != "" {
		return p + "-" + n, nil
	}
	return n, nil
}

func normalize(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	tag := nonTagChars.ReplaceAllString(lower, "-")
	return strings.Trim(tag, "-")
}
