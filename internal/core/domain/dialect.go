package domain

import (
	"fmt"
	"strings"
)

// Dialect identifies the SQL variant a backend speaks. It selects the
// validator ruleset, the row-bound rewrite, and the backend adapter.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMSSQL    Dialect = "mssql"
)

// ParseDialect accepts the common spellings of each supported dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mssql", "sqlserver", "mssqlserver":
		return DialectMSSQL, nil
	default:
		return "", fmt.Errorf("unknown dialect %q (supported: postgres, mssql)", s)
	}
}
