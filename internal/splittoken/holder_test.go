package splittoken

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestMayReplace(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := map[string]string{"purpose": "password_reset"}

	tok, err := fakeFactory().Generate("user-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	active, _ := tok.ToValueHolder(WithExpiry(now.Add(time.Hour)), WithMetadata(reset))
	expired := active.WithExpiry(now.Add(-time.Second))
	otherPurpose := active.WithMetadata(map[string]string{"purpose": "email_change", "email": "a@b.c"})

	cases := []struct {
		name    string
		current *ValueHolder
		want    bool
	}{
		{"no current token", nil, true},
		{"expired token", expired, true},
		{"active token same metadata", active, false},
		{"active token different metadata", otherPurpose, true},
	}
	for _, tc := range cases {
		if got := MayReplace(tc.current, reset, now); got != tc.want {
			t.Errorf("%s: MayReplace = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValueHolder_CopiesAreIndependent(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &ValueHolder{Selector: "s", VerifierHash: "h", ExpiresAt: &at, Metadata: map[string]string{"k": "v"}}

	c := h.WithMetadata(map[string]string{"k": "other"})
	if v, _ := h.MetadataValue("k"); v != "v" {
		t.Fatalf("original metadata changed: %q", v)
	}
	if v, _ := c.MetadataValue("k"); v != "other" {
		t.Fatalf("copy metadata %q", v)
	}

	later := h.WithExpiry(at.Add(time.Hour))
	if !h.ExpiresAt.Equal(at) {
		t.Fatal("original expiry changed")
	}
	if !later.ExpiresAt.Equal(at.Add(time.Hour)) {
		t.Fatal("copy expiry not applied")
	}
	if !h.Equal(c) || !h.Equal(later) {
		t.Fatal("copies must describe the same credential")
	}
}

func testValueHolder_EqualIsSelectorAndHash(t *rapid.T) {
	sel := rapid.StringMatching(`[A-Za-z0-9_-]{32}`).Draw(t, "sel")
	hash := rapid.StringMatching(`\$fake\$[a-f0-9]{2,40}`).Draw(t, "hash")
	otherHash := rapid.StringMatching(`\$fake\$[a-f0-9]{2,40}`).Filter(func(s string) bool { return s != hash }).Draw(t, "otherHash")

	a := &ValueHolder{Selector: sel, VerifierHash: hash}
	b := &ValueHolder{Selector: sel, VerifierHash: hash, Metadata: map[string]string{"x": "y"}}
	c := &ValueHolder{Selector: sel, VerifierHash: otherHash}

	if !a.Equal(b) {
		t.Fatal("metadata must not affect equality")
	}
	if a.Equal(c) {
		t.Fatal("different hashes compared equal")
	}
	if a.Equal(nil) {
		t.Fatal("holder equal to nil")
	}
}

func TestValueHolder_EqualIsSelectorAndHash(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValueHolder_EqualIsSelectorAndHash)
}
