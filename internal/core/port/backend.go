package port

import (
	"context"

	"github.com/portcullis/portcullis/internal/core/domain"
)

// QueryResult is the bounded outcome of one executed query. RowCount always
// equals len(Rows) and never exceeds the configured cap; Truncated is set
// when more rows existed than were returned. ExecutionTimeMs is stamped by
// the query service, not the adapter. Warnings carries the advisory notices
// from validation.
type QueryResult struct {
	Columns         []string         `json:"columns"`
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"row_count"`
	Truncated       bool             `json:"truncated"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// DatabaseInfo describes one database visible to the connected role.
type DatabaseInfo struct {
	Name      string `json:"name"`
	Owner     string `json:"owner,omitempty"`
	SizeHuman string `json:"size_human,omitempty"`
}

type TableInfo struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	RowEstimate int64  `json:"row_estimate"`
	Comment     string `json:"comment,omitempty"`
}

type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	Comment      string `json:"comment,omitempty"`
}

type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type CheckConstraint struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
}

type TableDetail struct {
	Schema           string            `json:"schema"`
	Name             string            `json:"name"`
	Comment          string            `json:"comment,omitempty"`
	RowEstimate      int64             `json:"row_estimate"`
	SizeHuman        string            `json:"size_human,omitempty"`
	Columns          []ColumnInfo      `json:"columns"`
	ForeignKeys      []ForeignKey      `json:"foreign_keys,omitempty"`
	Indexes          []IndexInfo       `json:"indexes,omitempty"`
	CheckConstraints []CheckConstraint `json:"check_constraints,omitempty"`
	SampleRows       []map[string]any  `json:"sample_rows,omitempty"`
}

// Backend is the capability surface every engine adapter implements. The
// gate core never sees a driver type: adapters own connection borrowing
// (acquire one, use for one call, release on every exit path) and the
// streaming row cap with its one-row truncation lookahead.
type Backend interface {
	Dialect() domain.Dialect
	Connect(ctx context.Context) error
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	ListTables(ctx context.Context) ([]TableInfo, error)
	DescribeTable(ctx context.Context, schema, table string) (*TableDetail, error)
	ExecuteQuery(ctx context.Context, sql string, maxRows int) (*QueryResult, error)
	GetQueryPlan(ctx context.Context, sql string) (*QueryResult, error)
}
