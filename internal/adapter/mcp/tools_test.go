package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/portcullis/portcullis/internal/audit"
	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
	"github.com/portcullis/portcullis/internal/core/service"
	"github.com/rs/zerolog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock Backend ---

type mockBackend struct {
	dialect domain.Dialect

	executeCalled  bool
	describeCalled bool
	lastSQL        string
	lastSchema     string
	lastTable      string

	result *port.QueryResult
	plan   *port.QueryResult
	dbs    []port.DatabaseInfo
	tables []port.TableInfo
	detail *port.TableDetail
	err    error
}

func (m *mockBackend) Dialect() domain.Dialect {
	if m.dialect == "" {
		return domain.DialectPostgres
	}
	return m.dialect
}

func (m *mockBackend) Connect(context.Context) error { return nil }

func (m *mockBackend) ListDatabases(context.Context) ([]port.DatabaseInfo, error) {
	return m.dbs, m.err
}

func (m *mockBackend) ListTables(context.Context) ([]port.TableInfo, error) {
	return m.tables, m.err
}

func (m *mockBackend) DescribeTable(_ context.Context, schema, table string) (*port.TableDetail, error) {
	m.describeCalled = true
	m.lastSchema = schema
	m.lastTable = table
	return m.detail, m.err
}

func (m *mockBackend) ExecuteQuery(_ context.Context, sql string, _ int) (*port.QueryResult, error) {
	m.executeCalled = true
	m.lastSQL = sql
	return m.result, m.err
}

func (m *mockBackend) GetQueryPlan(_ context.Context, sql string) (*port.QueryResult, error) {
	m.lastSQL = sql
	return m.plan, m.err
}

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func setupServer(backend *mockBackend) *server.MCPServer {
	logger := zerolog.New(io.Discard)

	validator := domain.NewValidator(domain.PostgresRuleset(), 10_000)
	gate := service.NewQueryService(validator, backend, audit.NoopAuditor{}, logger, nil, 100, 0, nil, nil)
	catalog := service.NewCatalogService(backend, logger, nil, nil, nil)

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, catalog, gate, logger)
	return s
}

// --- tests ---

func TestQuery_HappyPath(t *testing.T) {
	backend := &mockBackend{
		result: &port.QueryResult{
			Columns:  []string{"id", "name"},
			Rows:     []map[string]any{{"id": 1, "name": "alice"}},
			RowCount: 1,
		},
	}
	s := setupServer(backend)

	result := callTool(t, s, "query", map[string]any{"sql": "SELECT id, name FROM users"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	assert.Equal(t, "SELECT id, name FROM users LIMIT 100", backend.lastSQL)

	var qr port.QueryResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &qr))
	require.Len(t, qr.Rows, 1)
	assert.Equal(t, "alice", qr.Rows[0]["name"])
	assert.Equal(t, 1, qr.RowCount)
}

func TestQuery_MissingSQL(t *testing.T) {
	s := setupServer(&mockBackend{})

	result := callTool(t, s, "query", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestQuery_RejectsMutation(t *testing.T) {
	backend := &mockBackend{}
	s := setupServer(backend)

	result := callTool(t, s, "query", map[string]any{"sql": "DROP TABLE users"})
	assert.True(t, result.IsError)
	text := toolText(result)
	assert.Contains(t, text, string(domain.KindValidation))
	assert.Contains(t, text, "query rejected")
	assert.False(t, backend.executeCalled, "rejected queries must not reach the backend")
}

func TestQuery_TimeoutKind(t *testing.T) {
	backend := &mockBackend{err: context.DeadlineExceeded}
	s := setupServer(backend)

	result := callTool(t, s, "query", map[string]any{"sql": "SELECT id FROM slow LIMIT 5"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), string(domain.KindTimeout))
}

func TestQuery_BackendErrorIsSanitized(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("unexpected server error: relation OID 12345")}
	s := setupServer(backend)

	result := callTool(t, s, "query", map[string]any{"sql": "SELECT id FROM users LIMIT 5"})
	assert.True(t, result.IsError)
	text := toolText(result)
	assert.Contains(t, text, string(domain.KindExecution))
	assert.Contains(t, text, "check server logs")
	assert.NotContains(t, text, "OID")
}

func TestExplainQuery_HappyPath(t *testing.T) {
	backend := &mockBackend{
		plan: &port.QueryResult{
			Columns:  []string{"QUERY PLAN"},
			Rows:     []map[string]any{{"QUERY PLAN": "Seq Scan on users"}},
			RowCount: 1,
		},
	}
	s := setupServer(backend)

	result := callTool(t, s, "explain_query", map[string]any{"sql": "SELECT id FROM users"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	// Plans are never rewritten; the SQL reaches the backend untouched.
	assert.Equal(t, "SELECT id FROM users", backend.lastSQL)

	var qr port.QueryResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &qr))
	require.Len(t, qr.Rows, 1)
	assert.Equal(t, "Seq Scan on users", qr.Rows[0]["QUERY PLAN"])
}

func TestExplainQuery_RejectsMutation(t *testing.T) {
	s := setupServer(&mockBackend{})

	result := callTool(t, s, "explain_query", map[string]any{"sql": "DELETE FROM users"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), string(domain.KindValidation))
}

func TestValidateQuery_Valid(t *testing.T) {
	s := setupServer(&mockBackend{})

	result := callTool(t, s, "validate_query", map[string]any{"sql": "SELECT id FROM users LIMIT 5"})
	require.False(t, result.IsError)

	var verdict domain.Verdict
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
	assert.True(t, verdict.IsValid)
	assert.Empty(t, verdict.Errors)
	assert.Empty(t, verdict.Warnings)
}

func TestValidateQuery_InvalidIsStillASuccessfulCall(t *testing.T) {
	backend := &mockBackend{}
	s := setupServer(backend)

	result := callTool(t, s, "validate_query", map[string]any{"sql": "DROP TABLE users"})
	require.False(t, result.IsError, "an invalid query is a valid validation request")

	var verdict domain.Verdict
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
	assert.False(t, verdict.IsValid)
	assert.NotEmpty(t, verdict.Errors)
	assert.False(t, backend.executeCalled)
}

func TestValidateQuery_Warnings(t *testing.T) {
	s := setupServer(&mockBackend{})

	result := callTool(t, s, "validate_query", map[string]any{"sql": "SELECT * FROM users"})
	require.False(t, result.IsError)

	var verdict domain.Verdict
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
	assert.True(t, verdict.IsValid)
	assert.Len(t, verdict.Warnings, 2)
}

func TestListDatabases_HappyPath(t *testing.T) {
	backend := &mockBackend{
		dbs: []port.DatabaseInfo{{Name: "appdb", Owner: "app", SizeHuman: "12 MB"}},
	}
	s := setupServer(backend)

	result := callTool(t, s, "list_databases", nil)
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	var dbs []port.DatabaseInfo
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &dbs))
	require.Len(t, dbs, 1)
	assert.Equal(t, "appdb", dbs[0].Name)
}

func TestListTables_HappyPath(t *testing.T) {
	backend := &mockBackend{
		tables: []port.TableInfo{
			{Schema: "public", Name: "users", Type: "table", RowEstimate: 100},
			{Schema: "public", Name: "active_users", Type: "view"},
		},
	}
	s := setupServer(backend)

	result := callTool(t, s, "list_tables", nil)
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	var tables []port.TableInfo
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "users", tables[0].Name)
	assert.Equal(t, "view", tables[1].Type)
}

func TestDescribeTable_HappyPath(t *testing.T) {
	backend := &mockBackend{
		detail: &port.TableDetail{
			Schema:      "public",
			Name:        "users",
			RowEstimate: 1000,
			Columns: []port.ColumnInfo{
				{Name: "id", DataType: "uuid", IsPrimaryKey: true},
				{Name: "email", DataType: "text", IsNullable: true},
			},
		},
	}
	s := setupServer(backend)

	result := callTool(t, s, "describe_table", map[string]any{"table": "users"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	assert.Equal(t, "public", backend.lastSchema, "omitted schema falls back to the dialect default")
	assert.Equal(t, "users", backend.lastTable)

	var detail port.TableDetail
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &detail))
	assert.Equal(t, "users", detail.Name)
	require.Len(t, detail.Columns, 2)
	assert.True(t, detail.Columns[0].IsPrimaryKey)
}

func TestDescribeTable_SchemaArg(t *testing.T) {
	backend := &mockBackend{detail: &port.TableDetail{Schema: "sales", Name: "orders"}}
	s := setupServer(backend)

	result := callTool(t, s, "describe_table", map[string]any{"table": "orders", "schema": "sales"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))
	assert.Equal(t, "sales", backend.lastSchema)
}

func TestDescribeTable_MSSQLDefaultSchema(t *testing.T) {
	backend := &mockBackend{
		dialect: domain.DialectMSSQL,
		detail:  &port.TableDetail{Schema: "dbo", Name: "users"},
	}
	s := setupServer(backend)

	result := callTool(t, s, "describe_table", map[string]any{"table": "users"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))
	assert.Equal(t, "dbo", backend.lastSchema)
}

func TestDescribeTable_MissingTable(t *testing.T) {
	s := setupServer(&mockBackend{})

	result := callTool(t, s, "describe_table", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "table is required")
}

func TestDescribeTable_HostileIdentifier(t *testing.T) {
	backend := &mockBackend{}
	s := setupServer(backend)

	result := callTool(t, s, "describe_table", map[string]any{"table": "users; DROP TABLE users"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), string(domain.KindIdentifier))
	assert.False(t, backend.describeCalled, "rejected identifiers must not reach the backend")
}

func TestListTables_Error(t *testing.T) {
	backend := &mockBackend{err: fmt.Errorf("permission denied for pg_catalog")}
	s := setupServer(backend)

	result := callTool(t, s, "list_tables", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "check server logs")
	assert.NotContains(t, toolText(result), "pg_catalog")
}
