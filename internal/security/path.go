package security

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidateFilePath validates that a file path is safe and doesn't contain directory traversal attempts
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	return nil
}

// ValidateStreamURL validates a websocket stream URL. Only ws and wss
// schemes are accepted, and the URL must carry a host.
func ValidateStreamURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("stream URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid stream URL: %w", err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported stream scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("stream URL missing host: %s", raw)
	}

	return nil
}

// ValidateAPIBaseURL validates the persistence API base URL. Only http and
// https schemes are accepted.
func ValidateAPIBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("API base URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported API scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("API base URL missing host: %s", raw)
	}

	return nil
}
