package redirect

import (
	"net/url"
	"strings"
)

// Wildcard terminates a prefix entry.
const Wildcard = "*"

// Verify checks candidate against registered and returns the canonical
// redirect. rootURL resolves relative entries and relative candidates.
//
// An empty candidate resolves to the single registered entry when exactly one
// non-wildcard entry exists.
func Verify(candidate, rootURL string, registered []string) (string, bool) {
	valid := resolveEntries(rootURL, registered)
	if len(valid) == 0 {
		return "", false
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		if len(valid) == 1 && !strings.HasSuffix(valid[0], Wildcard) {
			return valid[0], true
		}
		return "", false
	}

	target, ok := canonical(ResolveRelative(rootURL, candidate))
	if !ok {
		return "", false
	}
	for _, entry := range valid {
		if matches(entry, target) {
			return target, true
		}
	}
	return "", false
}

// ResolveRelative prefixes uri with rootURL when uri is host-relative.
// Absolute or empty uris are returned unchanged.
func ResolveRelative(rootURL, uri string) string {
	if uri == "" || !strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "//") {
		return uri
	}
	if rootURL == "" {
		return uri
	}
	return strings.TrimRight(rootURL, "/") + uri
}

func resolveEntries(rootURL string, registered []string) []string {
	out := make([]string, 0, len(registered))
	for _, entry := range registered {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == Wildcard {
			out = append(out, entry)
			continue
		}
		entry = ResolveRelative(rootURL, entry)
		if strings.HasPrefix(entry, "/") {
			// relative entry without a root URL cannot match an absolute target
			continue
		}
		out = append(out, normalizeEntry(entry))
	}
	return out
}

// canonical parses target and returns its normalized form. The host is
// lowercased; everything else is kept as sent.
func canonical(target string) (string, bool) {
	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" || u.User != nil || u.Fragment != "" || u.Opaque != "" {
		return "", false
	}
	if strings.ContainsAny(u.Host, "\\@") {
		return "", false
	}
	if hasDotSegment(u.Path) || hasDotSegment(u.RawPath) {
		return "", false
	}
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

func normalizeEntry(entry string) string {
	prefix := strings.TrimSuffix(entry, Wildcard)
	u, err := url.Parse(prefix)
	if err != nil || u.Host == "" {
		return entry
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	out := u.String()
	if strings.HasSuffix(entry, Wildcard) {
		out += Wildcard
	}
	return out
}

func matches(entry, target string) bool {
	if entry == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(entry, Wildcard); ok {
		// wildcard entries ignore the query string of the target
		base, _, _ := strings.Cut(target, "?")
		return strings.HasPrefix(base, prefix)
	}
	if entry == target {
		return true
	}
	return strings.TrimSuffix(entry, "/") == strings.TrimSuffix(target, "/")
}

func hasDotSegment(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return strings.Contains(strings.ToLower(path), "%2e%2e")
}
