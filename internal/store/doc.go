// Package store executes rendered queries against a database engine.
//
// It is the only package in relq that performs I/O. Three executors share
// the Executor interface:
//   - Store over SQLite (go-sqlite3), the default and the engine tests use
//   - Store over MySQL (go-sql-driver/mysql)
//   - PostgresStore over PostgreSQL (pgx)
//
// Every engine rejection is returned as an *ExecutionError. Nothing is
// retried and no query is rewritten: a QueryText rendered for one dialect
// is refused by an executor of another.
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Result values are converted with ir.FromAny, so timestamps read back as
// RFC 3339 strings and SQLite booleans as integers.
package store
