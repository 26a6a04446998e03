package logutil

import (
	"net/url"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"Authorization", "token", "reset_token", "X-Api-Key", "new_password", "newPassword", "Cookie", "verifier_hash", "client-secret", "MASTER_KEY"} {
		if !IsSensitiveLogField(key) {
			t.Errorf("%q should be sensitive", key)
		}
	}
	for _, key := range []string{"email", "page", "plan_id", "Content-Type", "purpose", "selector"} {
		if IsSensitiveLogField(key) {
			t.Errorf("%q should not be sensitive", key)
		}
	}
}

var splitTokenGen = rapid.StringMatching(`[A-Za-z0-9_-]{56}`)

func testRedactQueryNeverLeaksTokens(t *rapid.T) {
	secret := splitTokenGen.Draw(t, "secret")
	page := rapid.StringMatching(`[0-9]{1,3}`).Draw(t, "page")

	out := RedactQuery(url.Values{"token": {secret}, "page": {page}})
	if strings.Contains(out, secret) {
		t.Fatalf("redacted query leaks token: %s", out)
	}
	if !strings.Contains(out, "page="+page) {
		t.Fatalf("non-sensitive parameter dropped: %s", out)
	}
}

func TestRedactQuery_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRedactQueryNeverLeaksTokens)
}

func TestRedactQuery_Empty(t *testing.T) {
	t.Parallel()
	if got := RedactQuery(nil); got != "" {
		t.Fatalf("RedactQuery(nil) = %q", got)
	}
}

func testRedactLinkKeepsPathDropsToken(t *rapid.T) {
	secret := splitTokenGen.Draw(t, "secret")
	path := rapid.SampledFrom([]string{"/auth/password/reset/confirm", "/account/email/confirm"}).Draw(t, "path")
	link := "https://panel.example.com" + path + "?token=" + url.QueryEscape(secret)

	out := RedactLink(link)
	if strings.Contains(out, secret) {
		t.Fatalf("RedactLink leaks token: %s", out)
	}
	if !strings.HasPrefix(out, "https://panel.example.com"+path+"?") {
		t.Fatalf("RedactLink lost the path: %s", out)
	}
}

func TestRedactLink_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRedactLinkKeepsPathDropsToken)
}

func TestRedactLink_Unparseable(t *testing.T) {
	t.Parallel()
	if got := RedactLink("http://[::1"); got != Redacted {
		t.Fatalf("RedactLink(bad) = %q", got)
	}
	if got := RedactLink("https://panel.example.com/plans"); got != "https://panel.example.com/plans" {
		t.Fatalf("RedactLink(no query) = %q", got)
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"alice@example.com": "a***@example.com",
		"  b@x.io ":         "b***@x.io",
		"nope":              "***",
		"@example.com":      "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
