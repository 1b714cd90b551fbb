// Package storetest holds testify doubles of the store gateway and an in-memory
// SQLite schema for tests that need real statements.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-gigs/internal/models"
	"ms-gigs/internal/store"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) BeginUnit(ctx context.Context) (store.Unit, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(store.Unit), args.Error(1)
}

type MockUnit struct {
	mock.Mock
}

func (m *MockUnit) ID() string {
	return "mock-unit"
}

func (m *MockUnit) Query(ctx context.Context, query string, args ...any) (store.RowSet, error) {
	ret := m.Called(ctx, query, args)
	return ret.Get(0).(store.RowSet), ret.Error(1)
}

func (m *MockUnit) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	ret := m.Called(ctx, query, args)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockUnit) ExecuteReturningKey(ctx context.Context, query string, args ...any) (int64, error) {
	ret := m.Called(ctx, query, args)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockUnit) Insert(ctx context.Context, model any, returning ...string) (int64, error) {
	ret := m.Called(ctx, model, returning)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockUnit) SelectOne(ctx context.Context, model any, where string, args ...any) error {
	return m.Called(ctx, model, where, args).Error(0)
}

func (m *MockUnit) Exists(ctx context.Context, model any, where string, args ...any) (bool, error) {
	ret := m.Called(ctx, model, where, args)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockUnit) CallProcedure(ctx context.Context, name string, args ...any) (store.RowSet, error) {
	ret := m.Called(ctx, name, args)
	return ret.Get(0).(store.RowSet), ret.Error(1)
}

func (m *MockUnit) Commit() error {
	return m.Called().Error(0)
}

func (m *MockUnit) Rollback() error {
	return m.Called().Error(0)
}

// Str is a non-NULL cell.
func Str(s string) *string {
	return &s
}

// Rows builds a RowSet from literal rows.
func Rows(columns []string, rows ...store.Row) store.RowSet {
	rs := store.RowSet{Columns: columns, Rows: []store.Row{}}
	rs.Rows = append(rs.Rows, rows...)
	return rs
}

// NewSQLiteDB opens a private in-memory database with the gig schema created
// from the bun models. A single connection keeps every unit on the same memory db.
func NewSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	_, err = bunDB.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	for _, model := range []any{
		(*models.Venue)(nil),
		(*models.Act)(nil),
		(*models.Gig)(nil),
		(*models.ActPerformance)(nil),
		(*models.TicketTier)(nil),
		(*models.Ticket)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	return bunDB
}

// SeedVenue inserts a venue and returns its id.
func SeedVenue(t *testing.T, db *bun.DB, name string, hireCost, capacity int) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowContext(context.Background(),
		"INSERT INTO venue (venuename, hirecost, capacity) VALUES (?, ?, ?) RETURNING venueid",
		name, hireCost, capacity).Scan(&id)
	require.NoError(t, err)
	return id
}

// SeedAct inserts an act and returns its id.
func SeedAct(t *testing.T, db *bun.DB, name string, fee int) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowContext(context.Background(),
		"INSERT INTO act (actname, genre, standardfee) VALUES (?, ?, ?) RETURNING actid",
		name, "Rock", fee).Scan(&id)
	require.NoError(t, err)
	return id
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *bun.DB, table string) int {
	t.Helper()
	n, err := db.NewSelect().Table(table).Count(context.Background())
	require.NoError(t, err)
	return n
}
