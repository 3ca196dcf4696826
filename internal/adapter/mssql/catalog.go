package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
)

// ListDatabases returns the user databases on the server. SQL Server has no
// cheap per-database size lookup from a single connection, so SizeHuman is
// left empty.
func (b *Backend) ListDatabases(ctx context.Context) ([]port.DatabaseInfo, error) {
	rows, err := b.db.QueryContext(ctx, queryListDatabases)
	if err != nil {
		return nil, classify(domain.KindExecution, "listing databases", err)
	}
	defer rows.Close()

	var dbs []port.DatabaseInfo
	for rows.Next() {
		var d port.DatabaseInfo
		if err := rows.Scan(&d.Name, &d.Owner, &d.SizeHuman); err != nil {
			return nil, fmt.Errorf("scanning database row: %w", err)
		}
		dbs = append(dbs, d)
	}
	return dbs, rows.Err()
}

// ListTables returns tables and views in the configured schemas, or in all
// non-system schemas when none are configured.
func (b *Backend) ListTables(ctx context.Context) ([]port.TableInfo, error) {
	filter, args := schemaFilter(b.schemas, "t.TABLE_SCHEMA", 1)
	query := fmt.Sprintf(queryListTables, filter)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(domain.KindExecution, "listing tables", err)
	}
	defer rows.Close()

	var tables []port.TableInfo
	for rows.Next() {
		var t port.TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type, &t.RowEstimate, &t.Comment); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DescribeTable returns columns, keys, indexes, constraints, size, and a
// handful of sample rows for one table.
func (b *Backend) DescribeTable(ctx context.Context, schema, table string) (*port.TableDetail, error) {
	comment, err := b.fetchTableComment(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	detail := &port.TableDetail{Schema: schema, Name: table, Comment: comment}

	detail.RowEstimate, detail.SizeHuman, err = b.fetchTableSize(ctx, schema, table)
	if err != nil {
		// Non-fatal: views have no partitions and therefore no size.
		detail.RowEstimate = 0
		detail.SizeHuman = ""
	}

	detail.Columns, err = b.fetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	if err := b.markPrimaryKeys(ctx, detail); err != nil {
		return nil, err
	}

	detail.ForeignKeys, err = b.fetchForeignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	detail.Indexes, err = b.fetchIndexes(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	// Check constraints and sample rows are enrichment; skip them on error.
	if checks, err := b.fetchCheckConstraints(ctx, schema, table); err == nil {
		detail.CheckConstraints = checks
	}
	if samples, err := b.fetchSampleRows(ctx, schema, table); err == nil {
		detail.SampleRows = samples
	}

	return detail, nil
}

func (b *Backend) fetchTableComment(ctx context.Context, schema, table string) (string, error) {
	var comment string
	err := b.db.QueryRowContext(ctx, queryTableComment, schema, table).Scan(&comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("table %q %w in schema %q", table, domain.ErrNotFound, schema)
		}
		return "", fmt.Errorf("table %q not found in schema %q: %w", table, schema, err)
	}
	return comment, nil
}

func (b *Backend) fetchColumns(ctx context.Context, schema, table string) ([]port.ColumnInfo, error) {
	rows, err := b.db.QueryContext(ctx, queryColumns, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var cols []port.ColumnInfo
	for rows.Next() {
		var col port.ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.DefaultValue, &col.Comment); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		col.IsNullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (b *Backend) markPrimaryKeys(ctx context.Context, detail *port.TableDetail) error {
	rows, err := b.db.QueryContext(ctx, queryPrimaryKeys, detail.Schema, detail.Name)
	if err != nil {
		return fmt.Errorf("querying primary keys: %w", err)
	}
	defer rows.Close()

	pkCols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning pk: %w", err)
		}
		pkCols[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range detail.Columns {
		if pkCols[detail.Columns[i].Name] {
			detail.Columns[i].IsPrimaryKey = true
		}
	}
	return nil
}

func (b *Backend) fetchForeignKeys(ctx context.Context, schema, table string) ([]port.ForeignKey, error) {
	rows, err := b.db.QueryContext(ctx, queryForeignKeys, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []port.ForeignKey
	for rows.Next() {
		var fk port.ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scanning fk: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (b *Backend) fetchIndexes(ctx context.Context, schema, table string) ([]port.IndexInfo, error) {
	rows, err := b.db.QueryContext(ctx, queryIndexes, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}
	defer rows.Close()

	var idxs []port.IndexInfo
	for rows.Next() {
		var idx port.IndexInfo
		if err := rows.Scan(&idx.Name, &idx.Definition, &idx.IsUnique); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

func (b *Backend) fetchCheckConstraints(ctx context.Context, schema, table string) ([]port.CheckConstraint, error) {
	rows, err := b.db.QueryContext(ctx, queryCheckConstraints, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying check constraints: %w", err)
	}
	defer rows.Close()

	var checks []port.CheckConstraint
	for rows.Next() {
		var ck port.CheckConstraint
		if err := rows.Scan(&ck.Name, &ck.Expression); err != nil {
			return nil, fmt.Errorf("scanning check constraint: %w", err)
		}
		checks = append(checks, ck)
	}
	return checks, rows.Err()
}

func (b *Backend) fetchTableSize(ctx context.Context, schema, table string) (rowEstimate int64, sizeHuman string, err error) {
	err = b.db.QueryRowContext(ctx, queryTableSize, schema, table).Scan(&rowEstimate, &sizeHuman)
	if err != nil {
		return 0, "", fmt.Errorf("querying table size: %w", err)
	}
	return rowEstimate, sizeHuman, nil
}

func (b *Backend) fetchSampleRows(ctx context.Context, schema, table string) ([]map[string]any, error) {
	fqn := fmt.Sprintf("%s.%s", quoteIdent(schema), quoteIdent(table))
	query := fmt.Sprintf("SELECT TOP (%d) * FROM %s", sampleRowCount, fqn)

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sampling rows: %w", err)
	}
	defer rows.Close()

	result, err := collectRows(rows, sampleRowCount)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

const sampleRowCount = 5
