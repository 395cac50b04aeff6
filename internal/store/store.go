package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
)

// Executor runs rendered statements. Implementations are safe for
// concurrent use.
type Executor interface {
	// Rows runs a SELECT and returns every row in engine order.
	Rows(ctx context.Context, text querysql.QueryText) ([]ir.Row, error)

	// Count runs a COUNT query and returns its single value.
	Count(ctx context.Context, text querysql.QueryText) (int64, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, text querysql.QueryText) error

	// Dialect is the SQL dialect the executor accepts.
	Dialect() querysql.Dialect

	Close() error
}

// Option configures an executor.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger statements are reported to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store executes statements through database/sql. It backs the SQLite and
// MySQL executors.
type Store struct {
	db      *sql.DB
	dialect querysql.Dialect
	logger  *slog.Logger
}

var _ Executor = (*Store)(nil)

// Open creates or opens a SQLite database at the given path. Use
// ":memory:" for a private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and every connection to
	// ":memory:" is a separate database, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	o := buildOptions(opts)
	return &Store{db: db, dialect: querysql.SQLite, logger: o.logger}, nil
}

// OpenMySQL connects to MySQL 8 or later (ROW_NUMBER is required).
func OpenMySQL(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	o := buildOptions(opts)
	return &Store{db: db, dialect: querysql.MySQL, logger: o.logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dialect implements Executor.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// checkDialect refuses statements rendered for another engine.
func checkDialect(want querysql.Dialect, text querysql.QueryText) error {
	if text.Dialect != want {
		return fmt.Errorf("store: %s statement sent to %s executor", text.Dialect, want)
	}
	return nil
}

// logStatement reports a statement at debug level.
func logStatement(logger *slog.Logger, op string, text querysql.QueryText) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	fp, _ := text.Fingerprint()
	logger.Debug("executing statement",
		"op", op,
		"dialect", text.Dialect,
		"fingerprint", fp,
		"args", len(text.Params),
	)
}

// OpenExecutor opens the executor for dialect d. For SQLite, dsn is a file
// path or ":memory:".
func OpenExecutor(ctx context.Context, d querysql.Dialect, dsn string, opts ...Option) (Executor, error) {
	var (
		exec Executor
		err  error
	)
	switch d {
	case querysql.SQLite:
		exec, err = Open(dsn, opts...)
	case querysql.Postgres:
		exec, err = OpenPostgres(ctx, dsn, opts...)
	case querysql.MySQL:
		exec, err = OpenMySQL(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("no executor for dialect %q", d)
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}
