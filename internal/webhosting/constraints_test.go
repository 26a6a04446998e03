package webhosting

import (
	"encoding/json"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func countGen() *rapid.Generator[int] {
	return rapid.IntRange(Unlimited, 500)
}

func constraintsGen() *rapid.Generator[Constraints] {
	return rapid.Custom(func(t *rapid.T) Constraints {
		return Constraints{
			StorageSize:    byteSizeGen().Draw(t, "storage"),
			MonthlyTraffic: countGen().Draw(t, "traffic"),
			Email: EmailConstraints{
				MaxStorageSize:      byteSizeGen().Draw(t, "mailStorage"),
				MaximumMailboxCount: countGen().Draw(t, "mailboxes"),
				MaximumForwardCount: countGen().Draw(t, "forwards"),
				MaximumAddressCount: countGen().Draw(t, "addresses"),
				SpamFilterCount:     countGen().Draw(t, "spamFilters"),
				MailListCount:       countGen().Draw(t, "mailLists"),
			},
			Database: DatabaseConstraints{
				ProvidedStorageSize:  byteSizeGen().Draw(t, "dbStorage"),
				MaximumAmountPerType: countGen().Draw(t, "dbPerType"),
				EnabledPgsql:         rapid.Bool().Draw(t, "pgsql"),
				EnabledMysql:         rapid.Bool().Draw(t, "mysql"),
			},
		}
	})
}

// ---------------------------------------------------------------------------
// Property: Changes is empty exactly for equal values and mirrors when swapped
// ---------------------------------------------------------------------------

func testConstraints_ChangesSymmetry(t *rapid.T) {
	a := constraintsGen().Draw(t, "a")
	b := constraintsGen().Draw(t, "b")

	if len(a.Changes(a)) != 0 {
		t.Fatal("a value must have no changes against itself")
	}

	forward := a.Changes(b)
	backward := b.Changes(a)
	if len(forward) != len(backward) {
		t.Fatalf("forward has %d changes, backward %d", len(forward), len(backward))
	}
	for i := range forward {
		f, r := forward[i], backward[i]
		if f.Field != r.Field || f.Old != r.New || f.New != r.Old {
			t.Fatalf("change %d not mirrored: %v vs %v", i, f, r)
		}
	}
	if a.Equal(b) != (len(forward) == 0) {
		t.Fatal("Equal disagrees with Changes")
	}
}

func TestConstraints_ChangesSymmetry_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testConstraints_ChangesSymmetry)
}

func FuzzConstraints_ChangesSymmetry_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testConstraints_ChangesSymmetry))
}

// ---------------------------------------------------------------------------
// Property: JSON preserves the value
// ---------------------------------------------------------------------------

func testConstraints_JSONPreservesValue(t *rapid.T) {
	c := constraintsGen().Draw(t, "c")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Constraints
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	if changes := c.Changes(decoded); len(changes) != 0 {
		t.Fatalf("JSON lost fields: %v", changes)
	}
}

func TestConstraints_JSONPreservesValue_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testConstraints_JSONPreservesValue)
}

func TestConstraints_ChangesReportsFieldPaths(t *testing.T) {
	t.Parallel()
	before := Constraints{
		StorageSize:    Size(10 * GiB),
		MonthlyTraffic: 100,
		Email:          EmailConstraints{MaximumMailboxCount: 5},
	}
	after := before
	after.StorageSize = Size(20 * GiB)
	after.Email.MaximumMailboxCount = Unlimited
	after.Database.EnabledMysql = true

	changes := before.Changes(after)
	want := []Change{
		{Field: "storage_size", Old: "10 GiB", New: "20 GiB"},
		{Field: "email.maximum_mailbox_count", Old: "5", New: "unlimited"},
		{Field: "database.enabled_mysql", Old: "false", New: "true"},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("change %d = %v, want %v", i, changes[i], want[i])
		}
	}
	if got := changes[0].String(); got != "storage_size: 10 GiB -> 20 GiB" {
		t.Fatalf("String = %q", got)
	}
}

func TestConstraints_Validate(t *testing.T) {
	t.Parallel()
	ok := Constraints{MonthlyTraffic: Unlimited, Email: EmailConstraints{MailListCount: 0}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := ok
	bad.Database.MaximumAmountPerType = -2
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConstraints) {
		t.Fatalf("Validate error = %v, want ErrInvalidConstraints", err)
	}
}
