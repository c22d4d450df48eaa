package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect captures what differs between the SQL engines: driver, JSON
// expressions, placeholders and error classification.
type Dialect interface {
	Name() string
	DriverName() string
	Goose() goose.Dialect
	Migrations() (fs.FS, error)

	// Configure tunes a freshly opened pool.
	Configure(db *sql.DB)

	// Placeholder returns the bind marker of the n-th argument (1-based).
	Placeholder(n int) string

	// Expr is the SQL expression of an indexed field. It must match the
	// expression used in the migrations so the index is used.
	Expr(f storage.Field) string

	// Arg converts a normalized query value for binding against f.
	Arg(v any, f storage.Field) any

	IsUniqueViolation(err error) bool
}

// SQLite is the modernc.org/sqlite dialect. Documents are stored as JSON
// text and read with json_extract.
type SQLite struct{}

func (SQLite) Name() string         { return "sqlite" }
func (SQLite) DriverName() string   { return "sqlite" }
func (SQLite) Goose() goose.Dialect { return goose.DialectSQLite3 }

func (SQLite) Migrations() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations/sqlite")
}

// Configure limits the pool to one connection. SQLite serializes writers
// anyway, and an in-memory database only lives as long as its connection.
func (SQLite) Configure(db *sql.DB) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) Expr(f storage.Field) string {
	return fmt.Sprintf("json_extract(doc, '$.%s')", f.Path)
}

func (SQLite) Arg(v any, _ storage.Field) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (SQLite) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// Postgres is the pgx dialect. Documents are JSONB and fields are read with
// #>>, cast for numeric and boolean indexes.
type Postgres struct{}

func (Postgres) Name() string         { return "postgres" }
func (Postgres) DriverName() string   { return "pgx" }
func (Postgres) Goose() goose.Dialect { return goose.DialectPostgres }

func (Postgres) Migrations() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations/postgres")
}

func (Postgres) Configure(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) Expr(f storage.Field) string {
	base := fmt.Sprintf("doc #>> '{%s}'", strings.ReplaceAll(f.Path, ".", ","))
	switch f.Kind {
	case storage.KindNumber:
		return "((" + base + ")::numeric)"
	case storage.KindBool:
		return "((" + base + ")::boolean)"
	default:
		return "(" + base + ")"
	}
}

func (Postgres) Arg(v any, f storage.Field) any {
	if f.Kind == storage.KindText {
		if _, ok := v.(string); !ok {
			return fmt.Sprint(v)
		}
	}
	return v
}

const pgUniqueViolation = "23505"

func (Postgres) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// DialectFor picks the dialect from a DSN: postgres:// and postgresql://
// URLs select Postgres, anything else is a SQLite path or file: URI.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres{}
	}
	return SQLite{}
}
