package ratelimit

import "strings"

// UnknownIdentifier is returned when no client address header is present.
const UnknownIdentifier = "unknown"

// HeaderGetter is satisfied by http.Header.
type HeaderGetter interface {
	Get(key string) string
}

// Checked in order; X-Forwarded-For contributes only its first hop.
var identifierHeaders = []string{
	"CF-Connecting-IP",
	"X-Real-IP",
	"X-Forwarded-For",
}

// IdentifierFromHeaders derives a client identifier from proxy headers.
func IdentifierFromHeaders(h HeaderGetter) string {
	if h == nil {
		return UnknownIdentifier
	}

	for _, name := range identifierHeaders {
		value := h.Get(name)
		if name == "X-Forwarded-For" {
			value, _, _ = strings.Cut(value, ",")
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}

	return UnknownIdentifier
}
