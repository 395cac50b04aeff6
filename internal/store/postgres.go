package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
)

// PostgresStore executes statements over a single pgx connection.
// A pgx.Conn is not safe for concurrent use, so calls are serialized.
type PostgresStore struct {
	mu     sync.Mutex
	conn   *pgx.Conn
	logger *slog.Logger
}

var _ Executor = (*PostgresStore)(nil)

// OpenPostgres connects to PostgreSQL.
func OpenPostgres(ctx context.Context, connString string, opts ...Option) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	o := buildOptions(opts)
	return &PostgresStore{conn: conn, logger: o.logger}, nil
}

// Dialect implements Executor.
func (s *PostgresStore) Dialect() querysql.Dialect {
	return querysql.Postgres
}

// Close closes the connection.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close(context.Background())
}

// Rows implements Executor.
func (s *PostgresStore) Rows(ctx context.Context, text querysql.QueryText) ([]ir.Row, error) {
	if err := checkDialect(querysql.Postgres, text); err != nil {
		return nil, err
	}
	logStatement(s.logger, "rows", text)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, text.SQL, text.Args()...)
	if err != nil {
		return nil, executionFailed("rows", text, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := []ir.Row{}
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, executionFailed("rows", text, err)
		}
		row, err := toRow(columns, raw)
		if err != nil {
			return nil, executionFailed("rows", text, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, executionFailed("rows", text, err)
	}
	return out, nil
}

// Count implements Executor.
func (s *PostgresStore) Count(ctx context.Context, text querysql.QueryText) (int64, error) {
	if err := checkDialect(querysql.Postgres, text); err != nil {
		return 0, err
	}
	logStatement(s.logger, "count", text)

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.conn.QueryRow(ctx, text.SQL, text.Args()...).Scan(&n); err != nil {
		return 0, executionFailed("count", text, err)
	}
	return n, nil
}

// Exec implements Executor.
func (s *PostgresStore) Exec(ctx context.Context, text querysql.QueryText) error {
	if err := checkDialect(querysql.Postgres, text); err != nil {
		return err
	}
	logStatement(s.logger, "exec", text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(ctx, text.SQL, text.Args()...); err != nil {
		return executionFailed("exec", text, err)
	}
	return nil
}
