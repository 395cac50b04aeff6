package querysql

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour a query is rendered for.
type Dialect string

const (
	// SQLite renders "?" placeholders and deduplicates with ROW_NUMBER().
	SQLite Dialect = "sqlite"

	// Postgres renders "$n" placeholders and deduplicates with DISTINCT ON.
	Postgres Dialect = "postgres"

	// MySQL renders "?" placeholders, backtick identifiers, and
	// deduplicates with ROW_NUMBER().
	MySQL Dialect = "mysql"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{SQLite, Postgres, MySQL}

// ParseDialect accepts a dialect name or a common driver alias.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return "", fmt.Errorf("unknown dialect %q (valid: sqlite, postgres, mysql)", s)
	}
}

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool {
	switch d {
	case SQLite, Postgres, MySQL:
		return true
	default:
		return false
	}
}

// QuoteIdent quotes a relation or column name.
func (d Dialect) QuoteIdent(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// placeholder returns the bind marker for the n-th parameter (1-based).
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// supportsDistinctOn reports whether the engine implements DISTINCT ON.
func (d Dialect) supportsDistinctOn() bool {
	return d == Postgres
}
