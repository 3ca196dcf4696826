package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
)

// ExecuteQuery runs sqlText and streams rows up to maxRows. Cancellation
// rides the context: the driver sends an attention signal so the server
// abandons the batch when the deadline passes.
func (b *Backend) ExecuteQuery(ctx context.Context, sqlText string, maxRows int) (*port.QueryResult, error) {
	rows, err := b.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classify(domain.KindExecution, "executing query", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := collectRows(rows, maxRows)
	if err != nil {
		return nil, classify(domain.KindExecution, "reading rows", err)
	}
	return result, nil
}

// GetQueryPlan returns the estimated plan via SHOWPLAN_ALL. The session
// toggle and the query must share one connection, so a dedicated connection
// is borrowed and restored before it returns to the pool. A leading EXPLAIN
// is stripped: T-SQL has no such keyword and showplan covers the intent.
func (b *Backend) GetQueryPlan(ctx context.Context, sqlText string) (*port.QueryResult, error) {
	sqlText = stripExplain(sqlText)

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, classify(domain.KindConnection, "acquiring connection", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_ALL ON"); err != nil {
		return nil, classify(domain.KindExecution, "enabling showplan", err)
	}
	// Restore on a fresh context so an expired query context cannot leave
	// the session in showplan mode.
	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(restoreCtx, "SET SHOWPLAN_ALL OFF")
	}()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classify(domain.KindExecution, "requesting query plan", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := collectRows(rows, 0)
	if err != nil {
		return nil, classify(domain.KindExecution, "reading query plan", err)
	}
	return result, nil
}

func stripExplain(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	if len(trimmed) > 7 && strings.EqualFold(trimmed[:7], "EXPLAIN") && strings.ContainsRune(" \t\r\n", rune(trimmed[7])) {
		return strings.TrimSpace(trimmed[7:])
	}
	return sqlText
}

// collectRows drains up to maxRows rows, then checks whether another row was
// available so the caller can tell a full page from a truncated result.
// maxRows <= 0 disables the cap.
func collectRows(rows *sql.Rows, maxRows int) (*port.QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading column names: %w", err)
	}

	result := &port.QueryResult{Columns: columns}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			row[name] = normalizeValue(values[i])
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

// normalizeValue keeps result maps JSON-friendly; the driver hands back
// []byte for some text and binary types.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// classify tags a driver failure with the gate's error kind. Context expiry
// wins regardless of the fallback kind.
func classify(kind domain.Kind, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.KindTimeout, op, err)
	}
	return domain.WrapError(kind, op, err)
}
