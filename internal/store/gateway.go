package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-gigs/internal/logger"
)

// Gateway is the only I/O boundary of the service. It hands out units of work
// and performs no business logic.
type Gateway interface {
	BeginUnit(ctx context.Context) (Unit, error)
}

// Unit is one atomic sequence of store operations. Every unit must end in exactly
// one Commit or Rollback; Rollback after Commit is a no-op so it can be deferred.
type Unit interface {
	ID() string
	Query(ctx context.Context, query string, args ...any) (RowSet, error)
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	ExecuteReturningKey(ctx context.Context, query string, args ...any) (int64, error)
	Insert(ctx context.Context, model any, returning ...string) (int64, error)
	SelectOne(ctx context.Context, model any, where string, args ...any) error
	Exists(ctx context.Context, model any, where string, args ...any) (bool, error)
	CallProcedure(ctx context.Context, name string, args ...any) (RowSet, error)
	Commit() error
	Rollback() error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type BunGateway struct {
	DB     *bun.DB
	Logger *logger.Logger
	// TxOptions is nil for the store's default isolation (read committed on PostgreSQL).
	TxOptions *sql.TxOptions
}

func NewBunGateway(db *bun.DB, log *logger.Logger) *BunGateway {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &BunGateway{DB: db, Logger: log}
}

func (g *BunGateway) BeginUnit(ctx context.Context) (Unit, error) {
	tx, err := g.DB.BeginTx(ctx, g.TxOptions)
	if err != nil {
		return nil, classify("begin unit", err)
	}
	u := &bunUnit{id: uuid.NewString(), tx: tx, log: g.Logger}
	u.log.Debug("DATABASE", fmt.Sprintf("unit %s opened", u.id))
	return u, nil
}

type bunUnit struct {
	id   string
	tx   bun.Tx
	log  *logger.Logger
	done bool
}

func (u *bunUnit) ID() string {
	return u.id
}

func (u *bunUnit) Query(ctx context.Context, query string, args ...any) (RowSet, error) {
	if u.done {
		return EmptyRowSet(), NewError(KindUnavailable, "query", "unit %s already finished", u.id)
	}
	rows, err := u.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return EmptyRowSet(), classify("query", err)
	}
	rs, err := materialise(rows)
	if err != nil {
		return EmptyRowSet(), classify("query", err)
	}
	return rs, nil
}

func (u *bunUnit) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if u.done {
		return 0, NewError(KindUnavailable, "execute", "unit %s already finished", u.id)
	}
	res, err := u.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("execute", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("execute", err)
	}
	return n, nil
}

// ExecuteReturningKey runs a statement ending in RETURNING <key>.
func (u *bunUnit) ExecuteReturningKey(ctx context.Context, query string, args ...any) (int64, error) {
	if u.done {
		return 0, NewError(KindUnavailable, "execute returning key", "unit %s already finished", u.id)
	}
	var key int64
	if err := u.tx.QueryRowContext(ctx, query, args...).Scan(&key); err != nil {
		if err == sql.ErrNoRows {
			return 0, NewError(KindUnavailable, "execute returning key", "statement returned no generated key")
		}
		return 0, classify("execute returning key", err)
	}
	return key, nil
}

// Insert writes model in a single statement. model is a pointer to a bun model
// or to a slice of them, so a whole batch goes out as one multi-row INSERT.
// Named returning columns are scanned back into the model.
func (u *bunUnit) Insert(ctx context.Context, model any, returning ...string) (int64, error) {
	if u.done {
		return 0, NewError(KindUnavailable, "insert", "unit %s already finished", u.id)
	}
	q := u.tx.NewInsert().Model(model)
	if len(returning) > 0 {
		q = q.Returning(strings.Join(returning, ", "))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, classify("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("insert", err)
	}
	return n, nil
}

// SelectOne loads the first row of model's table matching where. No match is
// a NotFound error.
func (u *bunUnit) SelectOne(ctx context.Context, model any, where string, args ...any) error {
	if u.done {
		return NewError(KindUnavailable, "select", "unit %s already finished", u.id)
	}
	if err := u.tx.NewSelect().Model(model).Where(where, args...).Limit(1).Scan(ctx); err != nil {
		return classify("select", err)
	}
	return nil
}

func (u *bunUnit) Exists(ctx context.Context, model any, where string, args ...any) (bool, error) {
	if u.done {
		return false, NewError(KindUnavailable, "exists", "unit %s already finished", u.id)
	}
	ok, err := u.tx.NewSelect().Model(model).Where(where, args...).Exists(ctx)
	if err != nil {
		return false, classify("exists", err)
	}
	return ok, nil
}

func (u *bunUnit) CallProcedure(ctx context.Context, name string, args ...any) (RowSet, error) {
	if !identifier.MatchString(name) {
		return EmptyRowSet(), NewError(KindRejected, "call procedure", "invalid procedure name %q", name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	rs, err := u.Query(ctx, fmt.Sprintf("SELECT * FROM %s(%s)", name, placeholders), args...)
	if err != nil {
		return rs, fmt.Errorf("calling %s: %w", name, err)
	}
	return rs, nil
}

func (u *bunUnit) Commit() error {
	if u.done {
		return NewError(KindUnavailable, "commit", "unit %s already finished", u.id)
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return classify("commit", err)
	}
	u.log.Debug("DATABASE", fmt.Sprintf("unit %s committed", u.id))
	return nil
}

func (u *bunUnit) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil {
		return classify("rollback", err)
	}
	u.log.Debug("DATABASE", fmt.Sprintf("unit %s rolled back", u.id))
	return nil
}
