package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

var secretKeys = map[string]struct{}{
	"private_key":   {},
	"owner_key":     {},
	"relayer_key":   {},
	"authorization": {},
	"api_key":       {},
}

// IsSecret reports whether values logged under key must be masked.
func IsSecret(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := secretKeys[normalized]; ok {
		return true
	}
	return strings.HasSuffix(normalized, "_secret")
}

// MaskValue returns RedactedValue for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField masks value when key is a secret key.
func MaskField(key, value string) slog.Attr {
	if IsSecret(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}

// RedactURL strips credentials and the query string from an RPC endpoint.
// Hosted node URLs often carry the API key in one or the other.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskValue(raw)
	}
	if u.User != nil {
		u.User = url.User(RedactedValue)
	}
	if u.RawQuery != "" {
		u.RawQuery = RedactedValue
	}
	// path segments after the host commonly hold project ids
	if strings.Trim(u.Path, "/") != "" {
		u.Path = "/" + RedactedValue
	}
	return u.String()
}
