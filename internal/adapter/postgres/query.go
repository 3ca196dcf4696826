package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
)

const (
	// sqlstateQueryCanceled is raised when statement_timeout fires server-side.
	sqlstateQueryCanceled = "57014"
	// sqlstateUndefinedTable is raised by ::regclass casts on missing tables.
	sqlstateUndefinedTable = "42P01"
)

// ExecuteQuery runs sql inside a read-only transaction and streams rows up to
// maxRows. When the caller's context carries a deadline, the same budget is
// pushed down as statement_timeout so PostgreSQL cancels server-side even if
// the Go context is cancelled first.
func (b *Backend) ExecuteQuery(ctx context.Context, sql string, maxRows int) (*port.QueryResult, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify(domain.KindConnection, "beginning transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if deadline, ok := ctx.Deadline(); ok {
		if ms := time.Until(deadline).Milliseconds(); ms > 0 {
			// SET LOCAL scopes to this transaction only.
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", ms)); err != nil {
				return nil, classify(domain.KindExecution, "setting statement timeout", err)
			}
		}
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, classify(domain.KindExecution, "executing query", err)
	}
	defer rows.Close()

	result, err := collectRows(rows, maxRows)
	if err != nil {
		return nil, classify(domain.KindExecution, "reading rows", err)
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(domain.KindExecution, "committing transaction", err)
	}
	return result, nil
}

// GetQueryPlan returns the planner's estimate for the statement. A bare
// statement is prefixed with EXPLAIN; one already carrying EXPLAIN runs as
// written. Plans are small, so no row cap is applied.
func (b *Backend) GetQueryPlan(ctx context.Context, sql string) (*port.QueryResult, error) {
	if !isExplain(sql) {
		sql = "EXPLAIN " + sql
	}
	return b.ExecuteQuery(ctx, sql, 0)
}

func isExplain(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "EXPLAIN")
}

// collectRows drains up to maxRows rows, then checks whether another row was
// available so the caller can tell a full page from a truncated result.
// maxRows <= 0 disables the cap.
func collectRows(rows pgx.Rows, maxRows int) (*port.QueryResult, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := &port.QueryResult{Columns: columns}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = vals[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if !result.Truncated {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating rows: %w", err)
		}
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// classify tags a driver failure with the gate's error kind. Timeouts win:
// both Go-side context expiry and the server's query_canceled SQLSTATE come
// back as KindTimeout regardless of the fallback kind.
func classify(kind domain.Kind, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.KindTimeout, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateQueryCanceled {
		return domain.WrapError(domain.KindTimeout, op, err)
	}
	return domain.WrapError(kind, op, err)
}
