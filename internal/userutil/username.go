// Package userutil derives per-user names for kernel objects shared by the
// daemon and its control client.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeUsername normalizes username-like values used in pipe/mutex names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// CurrentUsername returns the sanitized name of the user running the process.
// USERNAME wins over the account database so that the daemon and capschordctl
// agree even when user.Current is slow or unavailable.
func CurrentUsername() string {
	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return SanitizeUsername(username)
}

// ObjectName joins prefix and the current user's sanitized name,
// e.g. ObjectName(`Global\capschord-`) = `Global\capschord-alice`.
func ObjectName(prefix string) string {
	return prefix + CurrentUsername()
}
