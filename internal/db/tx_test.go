package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewFromSQL(sqlDB), mock
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteSplitToken)).
		WithArgs("sel").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := d.WithTx(context.Background(), func(q *Queries) error {
		n, err := q.DeleteSplitToken(context.Background(), "sel")
		require.EqualValues(t, 1, n)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_MockRollsBackOnError(t *testing.T) {
	d, mock := newMockDB(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := d.WithTx(context.Background(), func(q *Queries) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_ReportsRollbackFailure(t *testing.T) {
	d, mock := newMockDB(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("disk gone"))

	err := d.WithTx(context.Background(), func(q *Queries) error { return boom })
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "rollback failed: disk gone")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginAndCommitErrors(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("locked"))
	called := false
	err := d.WithTx(context.Background(), func(q *Queries) error { called = true; return nil })
	require.ErrorContains(t, err, "begin transaction: locked")
	require.False(t, called)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("busy"))
	err = d.WithTx(context.Background(), func(q *Queries) error { return nil })
	require.ErrorContains(t, err, "commit transaction: busy")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredSplitTokens_PassesCutoff(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSplitTokens)).
		WithArgs(int64(1_700_000_000_000)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := d.Queries().DeleteExpiredSplitTokens(context.Background(), 1_700_000_000_000)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
