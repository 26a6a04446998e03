package urlutil

import (
	"net/url"
	"testing"

	"pgregory.net/rapid"
)

var (
	hostGen  = rapid.StringMatching(`[a-z]{3,12}\.(com|io|test)`)
	tokenGen = rapid.StringMatching(`[A-Za-z0-9_-]{56}`)
	pathGen  = rapid.SampledFrom([]string{"/auth/password/reset/confirm", "/account/email/confirm", "auth/password/reset/confirm"})
)

func testTokenLinkRoundTrips(t *rapid.T) {
	host := hostGen.Draw(t, "host")
	prefix := rapid.SampledFrom([]string{"", "/", "/panel", "/panel/"}).Draw(t, "prefix")
	path := pathGen.Draw(t, "path")
	token := tokenGen.Draw(t, "token")

	link := TokenLink("https://"+host+prefix, path, token)
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("invalid link %s: %v", link, err)
	}
	if u.Scheme != "https" || u.Host != host {
		t.Fatalf("link %s lost scheme or host", link)
	}
	wantPath := "/" + path
	if path[0] == '/' {
		wantPath = path
	}
	if prefix == "/panel" || prefix == "/panel/" {
		wantPath = "/panel" + wantPath
	}
	if u.Path != wantPath {
		t.Fatalf("path = %q, want %q", u.Path, wantPath)
	}
	if got := u.Query().Get("token"); got != token {
		t.Fatalf("token = %q, want %q", got, token)
	}
}

func TestTokenLink_Properties(t *testing.T) {
	rapid.Check(t, testTokenLinkRoundTrips)
}

func FuzzTokenLink(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testTokenLinkRoundTrips))
}

func TestAbsolute(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"https://panel.example.com", "/plans", "https://panel.example.com/plans"},
		{"https://panel.example.com/", "", "https://panel.example.com"},
		{"https://panel.example.com/?x=1#frag", "/plans", "https://panel.example.com/plans"},
		{"http://localhost:8080", "auth/register", "http://localhost:8080/auth/register"},
		{"https://panel.example.com", "https://other.example/confirm", "https://other.example/confirm"},
		{" localhost:8080/ ", "/plans", "localhost:8080/plans"},
	}
	for _, c := range cases {
		if got := Absolute(c.base, c.path); got != c.want {
			t.Errorf("Absolute(%q, %q) = %q, want %q", c.base, c.path, got, c.want)
		}
	}
}

func TestTokenLink_EscapesToken(t *testing.T) {
	got := TokenLink("https://x.example", "/confirm", "a b&c")
	if got != "https://x.example/confirm?token=a+b%26c" {
		t.Fatalf("unexpected link %s", got)
	}
}
