package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/service"
	"github.com/rs/zerolog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "portcullis"

// Tool descriptions
const (
	descQuery = "Execute a read-only SQL query against the database and return columns, rows, " +
		"row_count, truncated, execution_time_ms, and any advisory warnings as JSON. " +
		"Every query passes a safety gate: only SELECT/WITH/EXPLAIN/SHOW/DESCRIBE statements are accepted, " +
		"mutating and administrative keywords are rejected, and a server-side row limit and query timeout are enforced. " +
		"A missing LIMIT is added automatically; prefer explicit column lists over SELECT *."

	descQueryParam = "SQL query to execute (read-only statements only)"

	descExplainQuery = "Show the database's execution plan for a SQL query without running it. " +
		"Returns the planner's strategy (scan types, join methods, cost estimates) as JSON rows. " +
		"The query passes the same safety gate as the query tool but is never rewritten or executed."

	descExplainQueryParam = "The SELECT query to explain (the EXPLAIN keyword is optional)"

	descValidateQuery = "Dry-run the safety gate on a SQL query without executing it. " +
		"Returns a verdict with is_valid, the list of rule violations, and advisory warnings " +
		"(missing LIMIT, SELECT *). Use this to pre-check generated SQL before calling query."

	descValidateQueryParam = "SQL query to check"

	descListDatabases = "List the databases on the connected server with owner and size where the " +
		"connected role may see them."

	descListTables = "List all tables and views in the configured schemas with type, estimated row count, " +
		"and comment. Use this to understand the database landscape before describing or querying tables; " +
		"row estimates help you plan queries with appropriate LIMIT clauses."

	descDescribeTable = "Describe a table's full structure: columns with types, nullability, defaults, " +
		"primary key flags, and comments; foreign keys with referenced tables; indexes; check constraints; " +
		"row estimate; size; and a few masked sample rows. " +
		"Use this to understand a table before writing queries: foreign keys show JOIN paths and " +
		"sample rows show actual data shapes."

	descDescribeTableParam  = "Name of the table to describe"
	descDescribeSchemaParam = "Schema name (optional, defaults to the dialect's default schema)"
)

func RegisterTools(s *server.MCPServer, catalog *service.CatalogService, gate *service.QueryService, logger zerolog.Logger) {
	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descQueryParam),
			),
		),
		queryHandler(gate, logger),
	)

	s.AddTool(
		mcp.NewTool("explain_query",
			mcp.WithDescription(descExplainQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descExplainQueryParam),
			),
		),
		explainQueryHandler(gate, logger),
	)

	s.AddTool(
		mcp.NewTool("validate_query",
			mcp.WithDescription(descValidateQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descValidateQueryParam),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		validateQueryHandler(gate),
	)

	s.AddTool(
		mcp.NewTool("list_databases",
			mcp.WithDescription(descListDatabases),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		listDatabasesHandler(catalog, logger),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		listTablesHandler(catalog, logger),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
			mcp.WithString("schema",
				mcp.Description(descDescribeSchemaParam),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		describeTableHandler(catalog, logger),
	)
}

// sqlArgs is the decoded request for the query, explain_query, and
// validate_query tools.
type sqlArgs struct {
	SQL string
}

func parseSQLArgs(request mcp.CallToolRequest) (sqlArgs, error) {
	sql, err := request.RequireString("sql")
	if err != nil {
		return sqlArgs{}, fmt.Errorf("sql is required")
	}
	return sqlArgs{SQL: sql}, nil
}

// describeArgs is the decoded request for the describe_table tool.
type describeArgs struct {
	Schema string
	Table  string
}

func parseDescribeArgs(request mcp.CallToolRequest, defaultSchema string) (describeArgs, error) {
	table, err := request.RequireString("table")
	if err != nil {
		return describeArgs{}, fmt.Errorf("table is required")
	}
	return describeArgs{
		Schema: request.GetString("schema", defaultSchema),
		Table:  table,
	}, nil
}

func queryHandler(gate *service.QueryService, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := parseSQLArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "query")
		result, err := gate.ExecuteQuery(ctx, args.SQL)
		if err != nil {
			return toolError(logger, "query", err), nil
		}

		return marshalResult(result)
	}
}

func explainQueryHandler(gate *service.QueryService, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := parseSQLArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "explain_query")
		result, err := gate.ExplainQuery(ctx, args.SQL)
		if err != nil {
			return toolError(logger, "explain_query", err), nil
		}

		return marshalResult(result)
	}
}

func validateQueryHandler(gate *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := parseSQLArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		// An invalid query is a successful validation call; the verdict
		// carries the outcome.
		verdict := gate.Validate(args.SQL)
		return marshalResult(verdict)
	}
}

func listDatabasesHandler(catalog *service.CatalogService, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbs, err := catalog.ListDatabases(ctx)
		if err != nil {
			return toolError(logger, "list_databases", err), nil
		}
		return marshalResult(dbs)
	}
}

func listTablesHandler(catalog *service.CatalogService, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := catalog.ListTables(ctx)
		if err != nil {
			return toolError(logger, "list_tables", err), nil
		}
		return marshalResult(tables)
	}
}

func describeTableHandler(catalog *service.CatalogService, logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := parseDescribeArgs(request, catalog.DefaultSchema())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		detail, err := catalog.DescribeTable(ctx, args.Schema, args.Table)
		if err != nil {
			return toolError(logger, "describe_table", err), nil
		}

		return marshalResult(detail)
	}
}

// toolError maps a gate failure onto an MCP tool error prefixed with its
// stable kind tag. Validation and identifier rejections carry their full
// detail back to the caller; backend internals stay in the server log.
func toolError(logger zerolog.Logger, tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError(err.Error())
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation, domain.KindIdentifier:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
	case domain.KindTimeout:
		return mcp.NewToolResultError(fmt.Sprintf("%s: the query did not finish within the configured timeout", kind))
	default:
		logger.Error().Err(err).Str("mcp.tool", tool).Msg("tool call failed")
		return mcp.NewToolResultError(fmt.Sprintf("%s: internal error, check server logs", kind))
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
