package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql files.
// Uses dotsql for named query management and sqlx for database operations.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries loads all .sql files from embedded filesystem and returns Queries instance.
// Named queries accessible by name (e.g., "list-policies", "get-api-key-by-hash").
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	var combined strings.Builder

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}

		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		combined.Write(content)
		combined.WriteByte('\n')
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, db: db}, nil
}

// DB returns the underlying connection.
func (q *Queries) DB() *sqlx.DB {
	return q.db
}

// query resolves a named query and rebinds ? placeholders for the driver.
func (q *Queries) query(name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(query), nil
}

// Exec executes a named query with placeholder conversion for database compatibility.
// Uses sqlx Rebind to convert ? placeholders to $1, $2 for PostgreSQL.
func (q *Queries) Exec(name string, args ...interface{}) (sql.Result, error) {
	return q.ExecContext(context.Background(), name, args...)
}

// ExecContext is Exec with a context.
func (q *Queries) ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := q.query(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, q.bind(args)...)
}

// Get retrieves a single row into dest struct using named query.
func (q *Queries) Get(name string, dest interface{}, args ...interface{}) error {
	return q.GetContext(context.Background(), name, dest, args...)
}

// GetContext is Get with a context.
func (q *Queries) GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.query(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, query, q.bind(args)...)
}

// Select retrieves multiple rows into dest slice using named query.
func (q *Queries) Select(name string, dest interface{}, args ...interface{}) error {
	return q.SelectContext(context.Background(), name, dest, args...)
}

// SelectContext is Select with a context.
func (q *Queries) SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.query(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, query, q.bind(args)...)
}

// InTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func (q *Queries) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{q: q, tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx runs named queries inside a transaction.
type Tx struct {
	q  *Queries
	tx *sqlx.Tx
}

// ExecContext executes a named query inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := t.q.query(name)
	if err != nil {
		return nil, err
	}
	return t.tx.ExecContext(ctx, query, t.q.bind(args)...)
}

// bind converts time.Time arguments to the driver's timestamp representation.
func (q *Queries) bind(args []interface{}) []interface{} {
	driver := q.db.DriverName()
	if driver != DriverSQLite {
		return args
	}
	out := make([]interface{}, len(args))
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			out[i] = bindTime(driver, t)
			continue
		}
		out[i] = a
	}
	return out
}

// bindTime returns t in the form the driver's timestamp columns expect.
// SQLite columns hold RFC 3339 UTC text at second precision.
func bindTime(driver string, t time.Time) interface{} {
	t = t.UTC()
	if driver == DriverSQLite {
		return t.Format(time.RFC3339)
	}
	return t
}
