package feed

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPath is the feed's WebSocket path on the serving host.
const DefaultPath = "/ws"

// Endpoint derives the feed URL from the page (or asset server) URL: a
// secure page gets a secure socket, anything else a plain one. The host is
// kept and the path replaced.
func Endpoint(pageURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid page url %q: missing host", pageURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid page url %q: unsupported scheme %q", pageURL, u.Scheme)
	}

	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: path}).String(), nil
}
