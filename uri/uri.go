// Package uri classifies and normalizes the source URLs that the
// import engine resolves: file:, data:, and http(s):.
package uri

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// URI is a source URL as given by a caller or recorded in a source
// meta file. It is kept as a plain string and classified lazily so
// that joining and comparison stay cheap.
type URI string

// New wraps a raw string as a URI.
func New(u string) URI {
	return URI(u)
}

// String returns the URI as a string.
func (u URI) String() string {
	return string(u)
}

// IsZero returns true if the URI is empty.
func (u URI) IsZero() bool {
	return u == ""
}

// IsFile returns true if the URI has the file: scheme.
func (u URI) IsFile() bool {
	return strings.HasPrefix(string(u), "file://")
}

// IsData returns true if the URI has the data: scheme (RFC 2397).
func (u URI) IsData() bool {
	return strings.HasPrefix(string(u), "data:")
}

// IsWeb returns true if the URI has the http: or https: scheme.
func (u URI) IsWeb() bool {
	return strings.HasPrefix(string(u), "http://") || strings.HasPrefix(string(u), "https://")
}

// IsValid returns true if the URI is one of the schemes Sources knows
// how to fetch.
func (u URI) IsValid() bool {
	if u.IsZero() {
		return false
	}
	return u.IsFile() || u.IsData() || u.IsWeb()
}

// Scheme returns the URI's scheme, or "" if it has none.
func (u URI) Scheme() string {
	i := strings.Index(string(u), ":")
	if i < 0 {
		return ""
	}
	return string(u)[:i]
}

// Ext returns the filename extension (without the dot) of the URI's
// path component, lowercased. For data: URIs this is always "".
func (u URI) Ext() string {
	if u.IsData() {
		return ""
	}
	p := u.pathComponent()
	e := path.Ext(p)
	if e == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

func (u URI) pathComponent() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return string(u)
	}
	return parsed.Path
}

// Join resolves rel against u the way an importer's sources/dependency
// callback resolves a URL relative to its own source. A rel URI that
// is itself absolute (has a scheme) is returned unchanged.
func Join(base URI, rel string) (URI, error) {
	if rel == "" {
		return base, nil
	}
	if New(rel).Scheme() != "" {
		return New(rel), nil
	}
	if base.IsData() {
		return "", fmt.Errorf("cannot join relative URL %q against a data: source", rel)
	}
	baseURL, err := url.Parse(string(base))
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", base, err)
	}
	relURL, err := url.Parse(rel)
	if err != nil {
		return "", fmt.Errorf("parsing relative URL %q: %w", rel, err)
	}
	return New(baseURL.ResolveReference(relURL).String()), nil
}
