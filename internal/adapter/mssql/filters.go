package mssql

import (
	"fmt"
	"strings"
)

// schemaFilter builds a WHERE fragment restricting column to the given
// schemas, or excluding the system schemas when none are configured. Schema
// names are bound as @pN parameters starting at startIdx.
func schemaFilter(schemas []string, column string, startIdx int) (string, []any) {
	if len(schemas) == 0 {
		return fmt.Sprintf("%s NOT IN ('sys', 'INFORMATION_SCHEMA')", column), nil
	}

	placeholders := make([]string, len(schemas))
	args := make([]any, len(schemas))
	for i, schema := range schemas {
		placeholders[i] = fmt.Sprintf("@p%d", startIdx+i)
		args[i] = schema
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), args
}

// quoteIdent brackets an identifier for interpolation where parameters are
// not accepted. Closing brackets are doubled per T-SQL quoting rules.
func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
