package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/corpusql/internal/querysql"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

//go:embed schema_postgres.sql
var postgresSchemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added rank index on result
const currentSchemaVersion = 1

// Querier is satisfied by *sqlx.DB, *sqlx.Conn and *sqlx.Tx.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Options configure Open.
type Options struct {
	// Driver is SQLiteDriver or PostgresDriver. Empty means SQLiteDriver.
	Driver string
	// DSN is a file path or URI for SQLite, a connection string for
	// PostgreSQL.
	DSN string
	// MaxOpenConns limits the pool. Zero keeps the driver default;
	// in-memory SQLite databases always use one connection.
	MaxOpenConns int
}

// Store is the backing store: corpus tables, per-layer annotation tables,
// searches and their durable results.
//
// Store methods run on the pool unless the Store was derived with With, in
// which case they run on the given connection or transaction.
type Store struct {
	db      *sqlx.DB
	q       Querier
	dialect querysql.Dialect
}

// Open connects to the database described by opts, verifies the
// connection and applies the schema and migrations.
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = SQLiteDriver
	}
	dialect, err := querysql.ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == querysql.SQLite {
		registerSQLite()
		opts.Driver = SQLiteDriver
	}

	db, err := sqlx.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	switch {
	case dialect == querysql.SQLite && isMemoryDSN(opts.DSN):
		// Each in-memory connection is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	s := &Store{db: db, q: db, dialect: dialect}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// OpenSQLite opens or creates a SQLite database file at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, Options{Driver: SQLiteDriver, DSN: path})
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Close closes the pool. It is a no-op on a Store derived with With.
func (s *Store) Close() error {
	if s.db == nil || s.q != Querier(s.db) {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying pool for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect is the SQL dialect of the backing database.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Conn reserves one connection from the pool. Temporary tables live on
// a single connection, so a search runs all of its statements on one.
// The caller must close it.
func (s *Store) Conn(ctx context.Context) (*sqlx.Conn, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve connection: %w", err)
	}
	return conn, nil
}

// With returns a view of the store whose methods run on q.
func (s *Store) With(q Querier) *Store {
	return &Store{db: s.db, q: q, dialect: s.dialect}
}

// Rebind converts a query written with ? placeholders to the dialect's
// bind style.
func (s *Store) Rebind(query string) string {
	if s.dialect == querysql.Postgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return s.q.QueryxContext(ctx, s.Rebind(query), args...)
}

// Exec executes a statement written with ? placeholders.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.Rebind(query), args...)
}

// Select scans every row of a query into dest, a pointer to a slice.
func (s *Store) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.Rebind(query), args...)
}

// Get scans a single row into dest. It returns sql.ErrNoRows when the
// query selects nothing.
func (s *Store) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, s.Rebind(query), args...)
}

// ExecRaw executes a statement already rendered in the store's dialect.
func (s *Store) ExecRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, query, args...)
}

// GetRaw scans a single row of a query already rendered in the store's
// dialect.
func (s *Store) GetRaw(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, query, args...)
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func (s *Store) applySchema(ctx context.Context) error {
	ddl := sqliteSchemaSQL
	if s.dialect == querysql.Postgres {
		ddl = postgresSchemaSQL
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on the stored
// schema version.
func (s *Store) runMigrations(ctx context.Context) error {
	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if version < 1 {
		if err := s.migrateToV1(ctx); err != nil {
			return err
		}
		version = 1
	}

	return s.setSchemaVersion(ctx, currentSchemaVersion)
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if s.dialect == querysql.SQLite {
		if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("get user_version: %w", err)
		}
		return version, nil
	}
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get schema_version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if s.dialect == querysql.SQLite {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("set schema_version: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("set schema_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the rank index on result for databases created before
// it was part of the schema.
func (s *Store) migrateToV1(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_result_rank
		ON result(search_id, rank)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
