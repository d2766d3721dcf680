package helpers

import (
	"regexp"
	"strings"
)

var unsafeTitleChars = regexp.MustCompile(`[^\w\s-]`)

// SanitizeTitle rewrites a media title into a filesystem-safe base name.
// Every character outside the word/space/hyphen set is replaced with an
// underscore, so the result survives any filesystem and a second pass
// through SanitizeTitle yields the same string.
func SanitizeTitle(title string) string {
	return unsafeTitleChars.ReplaceAllString(title, "_")
}

// SafeFileName derives an attachment file name from a title and extension.
// The extension is expected without a leading dot.
func SafeFileName(title, ext string) string {
	return SanitizeTitle(title) + "." + strings.TrimPrefix(ext, ".")
}
