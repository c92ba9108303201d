package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"srq20.org/internal/migrate"
)

func newMockStore(t *testing.T, dialect migrate.Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStore(db, dialect)
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock
}

func TestSQLStoreGet(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, migrate.Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(`select value from client_state where name = $1`)).
		WithArgs("authToken").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("tok"))
	mock.ExpectQuery(regexp.QuoteMeta(`select value from client_state where name = $1`)).
		WithArgs("userInfo").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, ok, err := s.Get(context.Background(), "authToken")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", v)

	_, ok, err = s.Get(context.Background(), "userInfo")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSetManyIsOneTransaction(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, migrate.SQLite)

	upsert := regexp.QuoteMeta(`insert into client_state(name, value, updated_at) values (?, ?, ?)`)
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("authToken", "a", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsert).WithArgs("refreshToken", "r", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.SetMany(context.Background(), map[string]string{"refreshToken": "r", "authToken": "a"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSetManyRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, migrate.SQLite)

	upsert := regexp.QuoteMeta(`insert into client_state(name, value, updated_at)`)
	mock.ExpectBegin()
	mock.ExpectExec(upsert).WithArgs("authToken", "a", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsert).WithArgs("refreshToken", "r", sqlmock.AnyArg()).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SetMany(context.Background(), map[string]string{"authToken": "a", "refreshToken": "r"})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDelete(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t, migrate.Postgres)

	del := regexp.QuoteMeta(`delete from client_state where name = $1`)
	mock.ExpectBegin()
	mock.ExpectExec(del).WithArgs("authToken").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("refreshToken").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), "authToken", "refreshToken"))
	require.NoError(t, s.Delete(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
