package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// WebSocketPath is the hub's fixed WebSocket API path.
const WebSocketPath = "/api/websocket"

// WebSocketURL derives the socket URL from a hub base URL: http becomes ws,
// https becomes wss and the API path is appended. ws/wss URLs are accepted
// as is apart from the path.
func WebSocketURL(baseURL string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "", ErrHostNotConfigured
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHostNotConfigured, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrHostNotConfigured, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrHostNotConfigured, baseURL)
	}

	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, WebSocketPath) {
		path += WebSocketPath
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// IsSecure reports whether the socket URL uses TLS.
func IsSecure(wsURL string) bool {
	return strings.HasPrefix(strings.ToLower(wsURL), "wss://")
}
