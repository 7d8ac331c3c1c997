package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces the value of any attribute whose key names a credential.
const Redacted = "[REDACTED]"

// sensitiveFragments are matched against lower-cased attribute keys. A DSN may
// embed a database password, so it is masked along with bearer material.
var sensitiveFragments = []string{
	"authorization",
	"token",
	"secret",
	"password",
	"dsn",
	"headers",
}

// Sensitive reports whether key carries credential material.
func Sensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}

// Redact masks attr when its key is sensitive. Empty values pass through.
func Redact(attr slog.Attr) slog.Attr {
	if !Sensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, Redacted)
}
