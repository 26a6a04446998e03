// Package urlutil builds the absolute links sent in account e-mails.
package urlutil

import (
	"net/url"
	"strings"
)

// Absolute joins path onto base, keeping any path prefix base already has
// ("https://example.com/panel" + "/auth/x" gives ".../panel/auth/x"). An
// absolute http(s) path is returned unchanged.
func Absolute(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.TrimLeft(path, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	if path == "" {
		u.Path = strings.TrimRight(u.Path, "/")
		return u.String()
	}
	return u.JoinPath(path).String()
}

// TokenLink is the confirmation link for a split token: Absolute(base, path)
// with the token in the "token" query parameter.
func TokenLink(base, path, token string) string {
	link := Absolute(base, path)
	u, err := url.Parse(link)
	if err != nil {
		return link + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
