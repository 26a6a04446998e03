package webhosting

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func capabilityGen() *rapid.Generator[Capability] {
	return rapid.Custom(func(t *rapid.T) Capability {
		name := rapid.SampledFrom([]string{"php", "ssh", "cron", "node", "python", "backups", "ssl.wildcard"}).Draw(t, "name")
		cfg := rapid.MapOfN(
			rapid.SampledFrom([]string{"version", "mode", "limit"}),
			rapid.StringMatching(`[a-z0-9.]{1,6}`),
			0, 3,
		).Draw(t, "config")
		if len(cfg) == 0 {
			cfg = nil
		}
		return Capability{Name: name, Config: cfg}
	})
}

func capabilitiesGen() *rapid.Generator[Capabilities] {
	return rapid.Custom(func(t *rapid.T) Capabilities {
		return NewCapabilities(rapid.SliceOfN(capabilityGen(), 0, 6).Draw(t, "caps")...)
	})
}

// ---------------------------------------------------------------------------
// Property: Add and Remove never modify the receiver
// ---------------------------------------------------------------------------

func testCapabilities_Immutable(t *rapid.T) {
	base := capabilitiesGen().Draw(t, "base")
	snapshot := NewCapabilities(base.List()...)

	added := base.Add(capabilityGen().Draw(t, "extra"))
	removed := base.Remove(base.Names()...)

	if !base.Equal(snapshot) {
		t.Fatal("Add or Remove modified the receiver")
	}
	if removed.Len() != 0 {
		t.Fatalf("removing every name left %v", removed.Names())
	}
	if added.Len() < base.Len() {
		t.Fatal("Add shrank the set")
	}

	if names := base.Names(); len(names) > 0 {
		cp, _ := base.Get(names[0])
		if cp.Config == nil {
			cp.Config = map[string]string{}
		}
		cp.Config["tampered"] = "yes"
		if !base.Equal(snapshot) {
			t.Fatal("mutating a Get result leaked into the set")
		}
	}
}

func TestCapabilities_Immutable_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCapabilities_Immutable)
}

// ---------------------------------------------------------------------------
// Property: Diff(a, b) is the mirror of Diff(b, a)
// ---------------------------------------------------------------------------

func testCapabilities_DiffMirror(t *rapid.T) {
	a := capabilitiesGen().Draw(t, "a")
	b := capabilitiesGen().Draw(t, "b")

	if !a.Diff(a).Empty() {
		t.Fatal("a set must have an empty diff against itself")
	}

	forward, backward := a.Diff(b), b.Diff(a)
	if !slices.Equal(forward.Added, backward.Removed) || !slices.Equal(forward.Removed, backward.Added) {
		t.Fatalf("diffs are not mirrored: %+v vs %+v", forward, backward)
	}
	if !slices.Equal(forward.Changed, backward.Changed) {
		t.Fatalf("changed lists differ: %v vs %v", forward.Changed, backward.Changed)
	}
	if a.Equal(b) != forward.Empty() {
		t.Fatal("Equal disagrees with Diff")
	}
	for _, n := range forward.Added {
		if a.Has(n) || !b.Has(n) {
			t.Fatalf("added %q is wrong", n)
		}
	}
}

func TestCapabilities_DiffMirror_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCapabilities_DiffMirror)
}

func FuzzCapabilities_DiffMirror_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCapabilities_DiffMirror))
}

// ---------------------------------------------------------------------------
// Property: JSON preserves the set
// ---------------------------------------------------------------------------

func testCapabilities_JSONPreservesSet(t *rapid.T) {
	caps := capabilitiesGen().Draw(t, "caps")
	data, err := json.Marshal(caps)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Capabilities
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	if !decoded.Equal(caps) {
		t.Fatalf("JSON changed the set: %s", data)
	}
}

func TestCapabilities_JSONPreservesSet_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCapabilities_JSONPreservesSet)
}

func TestCapabilities_AddReplacesConfig(t *testing.T) {
	t.Parallel()
	caps := NewCapabilities(Capability{Name: "php", Config: map[string]string{"version": "8.2"}})
	next := caps.Add(Capability{Name: "php", Config: map[string]string{"version": "8.3"}})

	if next.Len() != 1 {
		t.Fatalf("Len = %d, want 1", next.Len())
	}
	cp, ok := next.Get("php")
	if !ok || cp.Config["version"] != "8.3" {
		t.Fatalf("Get = %+v, %v", cp, ok)
	}
	diff := caps.Diff(next)
	if !slices.Equal(diff.Changed, []string{"php"}) || len(diff.Added) != 0 || len(diff.Removed) != 0 {
		t.Fatalf("diff = %+v", diff)
	}
}

func TestCapabilities_Validate(t *testing.T) {
	t.Parallel()
	if err := NewCapabilities(Capability{Name: "ssl.wildcard"}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, name := range []string{"", "PHP", "9lives", "has space"} {
		err := NewCapabilities(Capability{Name: name}).Validate()
		if !errors.Is(err, ErrInvalidCapability) {
			t.Fatalf("Validate(%q) = %v, want ErrInvalidCapability", name, err)
		}
	}
}

func TestCapabilities_JSONShape(t *testing.T) {
	t.Parallel()
	caps := NewCapabilities(Capability{Name: "ssh"}, Capability{Name: "php", Config: map[string]string{"version": "8.3"}})
	data, err := json.Marshal(caps)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"php":{"version":"8.3"},"ssh":{}}` {
		t.Fatalf("json = %s", data)
	}
}
