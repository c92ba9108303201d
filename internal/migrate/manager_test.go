package migrate

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/0001_state.up.sql":   {Data: []byte("create table client_state (key text primary key);")},
		"sql/0001_state.down.sql": {Data: []byte("drop table client_state;")},
		"sql/0002_index.up.sql":   {Data: []byte("create index a on client_state(key); create index b on client_state(key);")},
		"sql/README.md":           {Data: []byte("ignored")},
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()
	got := splitStatements("insert into t values ('a;b'); select 1;\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[0] != "insert into t values ('a;b');" {
		t.Fatalf("unexpected first statement %q", got[0])
	}
}

func TestCollectSQLOrdersAndFilters(t *testing.T) {
	t.Parallel()
	files, err := collectSQL(testFS(), "sql", ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 2 || files[0].Base != "0001_state.up.sql" || files[1].Path != "sql/0002_index.up.sql" {
		t.Fatalf("unexpected files: %+v", files)
	}
	missing, err := collectSQL(testFS(), "nope", ".up.sql")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing dir, got %v, %v", missing, err)
	}
}

func TestUpAppliesPendingOnly(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations order by name asc")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_state.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create index a on client_state(key);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create index b on client_state(key);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations(name, applied_at) values (?, ?)")).
		WithArgs("0002_index.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mgr := NewManager(db, testFS(), "sql", SQLite)
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("create table if not exists state_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("select name from state_migrations order by name asc")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_state.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table client_state;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("delete from state_migrations where name = $1")).
		WithArgs("0001_state.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, testFS(), "sql", Postgres, WithMigrationsTable("state_migrations"))
	if err := mgr.Down(context.Background()); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
