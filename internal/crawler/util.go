package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/sitecrawler/internal/hash/sha256"
)

const maxNameLength = 100

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeName derives a filesystem-safe object name for u: host and path with
// separators replaced by underscores, capped at 100 characters, followed by a
// short digest of the full URL so distinct URLs never share a name.
func SafeName(u NormalizedURL) string {
	var name string
	if parsed, err := url.Parse(string(u)); err == nil {
		name = strings.ReplaceAll(parsed.Host, ".", "_") + strings.ReplaceAll(parsed.EscapedPath(), "/", "_")
	}
	name = invalidFilenameChars.ReplaceAllString(name, "_")
	if name == "" {
		name = "index"
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name + "_" + sha256.Sum([]byte(u))[:12] + ".html"
}
