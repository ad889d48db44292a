package media

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MaxTitleRunes caps the display title used for the sent filename.
const MaxTitleRunes = 160

const fallbackTitle = "video"

// SanitizeTitle makes a media title safe to use as a filename on any OS.
// Reserved characters and control characters are dropped, whitespace runs
// collapse to one space, and the result is trimmed and truncated.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Join(strings.Fields(b.String()), " ")
	if runes := []rune(clean); len(runes) > MaxTitleRunes {
		clean = strings.TrimSpace(string(runes[:MaxTitleRunes]))
	}
	// A title of only dots would name the directory itself.
	if strings.Trim(clean, ".") == "" {
		return fallbackTitle
	}
	return clean
}

// DocumentFilename joins the sanitized title with the artifact's extension.
func DocumentFilename(title, artifactPath string) string {
	return SanitizeTitle(title) + filepath.Ext(artifactPath)
}
