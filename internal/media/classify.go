// Package media turns an inbound URL into extraction options and a
// presentable filename.
package media

import (
	"strings"

	"clipbot/internal/domain"
)

// hostsByCategory is checked in order; the first match wins.
var hostsByCategory = []struct {
	category domain.SourceCategory
	hosts    []string
}{
	{domain.CategoryLongForm, []string{"youtube.com", "youtu.be"}},
	{domain.CategoryShortForm, []string{"tiktok.com"}},
}

// Classify labels text by the video platform it mentions. Matching is a
// case-insensitive substring check, so "https://m.YouTube.com/..." and
// "see youtu.be/x" both classify as long-form. Unknown or empty input is
// CategoryOther.
func Classify(text string) domain.SourceCategory {
	lower := strings.ToLower(text)
	for _, entry := range hostsByCategory {
		for _, host := range entry.hosts {
			if strings.Contains(lower, host) {
				return entry.category
			}
		}
	}
	return domain.CategoryOther
}

// IsFetchable reports whether text looks like an http(s) link.
func IsFetchable(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
