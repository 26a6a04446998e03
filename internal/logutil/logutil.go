// Package logutil keeps credentials out of log lines: split tokens travel in
// confirmation-link query strings and request bodies, and e-mail addresses
// are personal data.
package logutil

import (
	"net/url"
	"strings"
)

// Redacted replaces sensitive values in log output.
const Redacted = "[REDACTED]"

// sensitiveFragments are matched against keys lower-cased with '-' and '_'
// removed, so "reset_token", "X-Api-Key" and "newPassword" all hit.
var sensitiveFragments = []string{
	"token",
	"verifier",
	"secret",
	"password",
	"apikey",
	"cookie",
	"masterkey",
}

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	if normalized == "authorization" {
		return true
	}
	for _, frag := range sensitiveFragments {
		if strings.Contains(normalized, frag) {
			return true
		}
	}
	return false
}

// RedactQuery encodes query parameters with sensitive values replaced.
// Keys are sorted so log lines are stable.
func RedactQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	safe := make(url.Values, len(values))
	for k, vs := range values {
		if IsSensitiveLogField(k) {
			safe[k] = []string{Redacted}
			continue
		}
		safe[k] = vs
	}
	return safe.Encode()
}

// RedactLink returns rawURL with sensitive query values replaced. Unparseable
// input is redacted entirely.
func RedactLink(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Redacted
	}
	u.RawQuery = RedactQuery(u.Query())
	return u.String()
}

// MaskEmail keeps the domain and the first character of the local part.
func MaskEmail(addr string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(addr), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
