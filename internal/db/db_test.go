package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func createTestAccount(t *testing.T, q *Queries, id, email string) {
	t.Helper()
	require.NoError(t, q.CreateAccount(context.Background(), CreateAccountParams{
		ID:           id,
		Email:        email,
		PasswordHash: "hash-" + id,
		CreatedAt:    1_700_000_000_000,
	}))
}

func TestAccounts_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries()

	createTestAccount(t, q, "acc-1", "alice@example.com")

	byEmail, err := q.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "acc-1", byEmail.ID)
	require.Equal(t, byEmail.CreatedAt, byEmail.UpdatedAt)

	byID, err := q.GetAccountByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, byEmail, byID)

	_, err = q.GetAccountByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAccounts_DuplicateEmailIsUniqueViolation(t *testing.T) {
	q := openTestDB(t).Queries()
	createTestAccount(t, q, "acc-1", "alice@example.com")

	err := q.CreateAccount(context.Background(), CreateAccountParams{
		ID: "acc-2", Email: "alice@example.com", PasswordHash: "x", CreatedAt: 1,
	})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err), "expected unique violation, got %v", err)
	require.False(t, IsUniqueViolation(errors.New("other")))
}

func TestAccounts_Updates(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries()
	createTestAccount(t, q, "acc-1", "alice@example.com")

	n, err := q.UpdateAccountPasswordHash(ctx, UpdateAccountPasswordHashParams{PasswordHash: "new", UpdatedAt: 5, ID: "acc-1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = q.UpdateAccountEmail(ctx, UpdateAccountEmailParams{Email: "alice@new.example", UpdatedAt: 6, ID: "acc-1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	acc, err := q.GetAccountByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, "new", acc.PasswordHash)
	require.Equal(t, "alice@new.example", acc.Email)
	require.EqualValues(t, 6, acc.UpdatedAt)

	n, err = q.UpdateAccountEmail(ctx, UpdateAccountEmailParams{Email: "x@y.z", UpdatedAt: 7, ID: "missing"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSplitTokens_UpsertReplacesPerOwnerAndPurpose(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries()
	createTestAccount(t, q, "acc-1", "alice@example.com")

	first := UpsertSplitTokenParams{
		Selector:     "sel-1",
		OwnerID:      "acc-1",
		Purpose:      "password_reset",
		VerifierHash: "hash-1",
		ExpiresAt:    sql.NullInt64{Int64: 1000, Valid: true},
		Metadata:     `{"purpose":"password_reset"}`,
		CreatedAt:    1,
	}
	require.NoError(t, q.UpsertSplitToken(ctx, first))

	second := first
	second.Selector = "sel-2"
	second.VerifierHash = "hash-2"
	second.ExpiresAt = sql.NullInt64{}
	require.NoError(t, q.UpsertSplitToken(ctx, second))

	_, err := q.GetSplitTokenBySelector(ctx, "sel-1")
	require.ErrorIs(t, err, sql.ErrNoRows, "old selector must be gone after replace")

	got, err := q.GetSplitTokenByOwner(ctx, GetSplitTokenByOwnerParams{OwnerID: "acc-1", Purpose: "password_reset"})
	require.NoError(t, err)
	require.Equal(t, "sel-2", got.Selector)
	require.Equal(t, "hash-2", got.VerifierHash)
	require.False(t, got.ExpiresAt.Valid)

	// A different purpose is a separate slot.
	other := first
	other.Selector = "sel-3"
	other.Purpose = "email_change"
	require.NoError(t, q.UpsertSplitToken(ctx, other))

	n, err := q.DeleteSplitTokensByOwner(ctx, "acc-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestSplitTokens_OwnerMustExist(t *testing.T) {
	q := openTestDB(t).Queries()
	err := q.UpsertSplitToken(context.Background(), UpsertSplitTokenParams{
		Selector: "sel", OwnerID: "ghost", Purpose: "p", VerifierHash: "h", Metadata: "{}", CreatedAt: 1,
	})
	require.Error(t, err)
}

func testSplitTokens_DeleteExpired(t *rapid.T) {
	ctx := context.Background()
	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer d.Close()
	q := d.Queries()

	if err := q.CreateAccount(ctx, CreateAccountParams{ID: "acc", Email: "a@b.c", PasswordHash: "h", CreatedAt: 1}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	now := rapid.Int64Range(1_000, 1_000_000).Draw(t, "now")
	expiries := rapid.SliceOfN(rapid.Ptr(rapid.Int64Range(0, 2_000_000), true), 0, 20).Draw(t, "expiries")

	var wantExpired int64
	for i, exp := range expiries {
		p := UpsertSplitTokenParams{
			Selector:     fmt.Sprintf("sel-%d", i),
			OwnerID:      "acc",
			Purpose:      fmt.Sprintf("purpose-%d", i),
			VerifierHash: "h",
			Metadata:     "{}",
			CreatedAt:    1,
		}
		if exp != nil {
			p.ExpiresAt = sql.NullInt64{Int64: *exp, Valid: true}
			if *exp <= now {
				wantExpired++
			}
		}
		if err := q.UpsertSplitToken(ctx, p); err != nil {
			t.Fatalf("UpsertSplitToken: %v", err)
		}
	}

	got, err := q.DeleteExpiredSplitTokens(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSplitTokens: %v", err)
	}
	if got != wantExpired {
		t.Fatalf("deleted %d rows, want %d", got, wantExpired)
	}

	again, err := q.DeleteExpiredSplitTokens(ctx, now)
	if err != nil || again != 0 {
		t.Fatalf("second purge deleted %d (%v), want 0", again, err)
	}
}

func TestSplitTokens_DeleteExpired(t *testing.T) {
	rapid.Check(t, testSplitTokens_DeleteExpired)
}

func TestPlans_CRUD(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries()

	require.NoError(t, q.CreatePlan(ctx, CreatePlanParams{ID: "p2", Name: "Pro", Constraints: "{}", Capabilities: "{}", CreatedAt: 10}))
	require.NoError(t, q.CreatePlan(ctx, CreatePlanParams{ID: "p1", Name: "Basic", Constraints: "{}", Capabilities: "{}", CreatedAt: 10}))

	err := q.CreatePlan(ctx, CreatePlanParams{ID: "p3", Name: "Pro", Constraints: "{}", Capabilities: "{}", CreatedAt: 10})
	require.True(t, IsUniqueViolation(err))

	plans, err := q.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Equal(t, "Basic", plans[0].Name, "plans are ordered by name")

	n, err := q.UpdatePlan(ctx, UpdatePlanParams{Constraints: `{"monthly_traffic":5}`, Capabilities: `{"ssh":{}}`, UpdatedAt: 20, ID: "p2"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	p, err := q.GetPlan(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, `{"monthly_traffic":5}`, p.Constraints)
	require.EqualValues(t, 10, p.CreatedAt)
	require.EqualValues(t, 20, p.UpdatedAt)

	_, err = q.GetPlan(ctx, "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	boom := errors.New("boom")
	err := d.WithTx(ctx, func(q *Queries) error {
		if err := q.CreateAccount(ctx, CreateAccountParams{ID: "acc", Email: "a@b.c", PasswordHash: "h", CreatedAt: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = d.Queries().GetAccountByID(ctx, "acc")
	require.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, d.WithTx(ctx, func(q *Queries) error {
		return q.CreateAccount(ctx, CreateAccountParams{ID: "acc", Email: "a@b.c", PasswordHash: "h", CreatedAt: 1})
	}))
	_, err = d.Queries().GetAccountByID(ctx, "acc")
	require.NoError(t, err)
}

func TestOpen_EncryptedFileRequiresKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "hostdesk.db")
	key := strings.Repeat("5a", 32)

	d, err := Open(path, key)
	require.NoError(t, err)
	createTestAccount(t, d.Queries(), "acc-1", "alice@example.com")
	require.NoError(t, d.Close())

	reopened, err := Open(path, key)
	require.NoError(t, err)
	acc, err := reopened.Queries().GetAccountByID(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", acc.Email)
	require.NoError(t, reopened.Close())

	_, err = Open(path, strings.Repeat("00", 32))
	require.Error(t, err, "wrong key must not open the database")
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("", "")
	require.Error(t, err)
}
