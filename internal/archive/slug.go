package archive

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// slugFromMeetingURL derives the archive folder slug from a meeting URL: the
// sanitised last non-empty path segment, else the host, else "unknown"
// (§6).
func slugFromMeetingURL(raw string) string {
	if raw == "" {
		return "unknown"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "unknown"
	}

	seg := ""
	if path := strings.Trim(u.Path, "/"); path != "" {
		parts := strings.Split(path, "/")
		seg = parts[len(parts)-1]
	}
	if seg == "" {
		seg = u.Host
	}
	if seg == "" {
		return "unknown"
	}

	return sanitiseSlug(seg)
}

// sanitiseSlug runs s through NFKD, strips combining marks, collapses any
// run of non-alphanumeric characters to a single hyphen, trims leading and
// trailing hyphens, and lowercases the result.
func sanitiseSlug(s string) string {
	decomposed := norm.NFKD.String(s)

	var b strings.Builder
	lastWasHyphen := true // suppresses a leading hyphen
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			lastWasHyphen = false
			continue
		}
		if !lastWasHyphen {
			b.WriteByte('-')
			lastWasHyphen = true
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}
