// Package testdb provides in-memory databases for tests in other packages.
package testdb

import (
	"testing"

	"github.com/kuitang/hostdesk/internal/db"
)

// New returns a fresh in-memory database that is closed when the test ends.
func New(tb testing.TB) *db.DB {
	tb.Helper()
	d, err := db.OpenInMemory()
	if err != nil {
		tb.Fatalf("failed to open in-memory database: %v", err)
	}
	tb.Cleanup(func() { _ = d.Close() })
	return d
}

// NewUnmanaged returns a fresh in-memory database for rapid property checks,
// which have no Cleanup hook. The caller closes it.
func NewUnmanaged() (*db.DB, error) {
	return db.OpenInMemory()
}
