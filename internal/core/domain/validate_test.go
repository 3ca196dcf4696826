package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgValidator() *Validator {
	return NewValidator(PostgresRuleset(), 10_000)
}

func msValidator() *Validator {
	return NewValidator(MSSQLRuleset(), 10_000)
}

func joinedErrors(v Verdict) string {
	return strings.Join(v.Errors, "; ")
}

func TestValidate_AllowsPlainSelect(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT id, name FROM customers LIMIT 10")
	assert.True(t, verdict.IsValid)
	assert.Empty(t, verdict.Errors)
	assert.Empty(t, verdict.Warnings)
}

func TestValidate_EmptyQuery(t *testing.T) {
	t.Parallel()
	for _, sql := range []string{"", "   ", "\n\t  "} {
		verdict := pgValidator().Validate(sql)
		assert.False(t, verdict.IsValid)
		require.Len(t, verdict.Errors, 1)
		assert.Contains(t, verdict.Errors[0], "empty")
	}
}

func TestValidate_CommentOnlyQuery(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("-- just a note\n/* and a block */")
	assert.False(t, verdict.IsValid)
}

func TestValidate_LengthBoundShortCircuits(t *testing.T) {
	t.Parallel()
	v := NewValidator(PostgresRuleset(), 20)
	// Over the bound and full of blockable content: only the length error
	// may be reported.
	verdict := v.Validate("DROP TABLE x; DELETE FROM y; GRANT ALL")
	assert.False(t, verdict.IsValid)
	require.Len(t, verdict.Errors, 1)
	assert.Contains(t, verdict.Errors[0], "maximum")
}

func TestValidate_MutatingStartersRejected(t *testing.T) {
	t.Parallel()
	queries := []string{
		"INSERT INTO t VALUES (1)",
		"UPDATE t SET x = 1",
		"DELETE FROM t",
		"DROP TABLE t",
		"CREATE TABLE t (id int)",
		"ALTER TABLE t ADD COLUMN x int",
		"TRUNCATE t",
		"GRANT SELECT ON t TO alice",
		"REVOKE SELECT ON t FROM alice",
	}
	for _, sql := range queries {
		verdict := pgValidator().Validate(sql)
		assert.False(t, verdict.IsValid, "expected %q to be rejected", sql)
	}
}

func TestValidate_RejectionNamesTheKeyword(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("DELETE FROM customers")
	assert.False(t, verdict.IsValid)
	assert.Contains(t, joinedErrors(verdict), "DELETE")
}

func TestValidate_KeywordsMatchWholeWordsOnly(t *testing.T) {
	t.Parallel()
	// Identifiers that merely contain a blocked keyword as a substring
	// must not trip the scan.
	queries := []string{
		"SELECT created_at FROM orders LIMIT 5",
		"SELECT * FROM updates LIMIT 5",
		"SELECT inserted_rows FROM stats LIMIT 5",
		"SELECT dropout_rate FROM cohorts LIMIT 5",
	}
	for _, sql := range queries {
		verdict := pgValidator().Validate(sql)
		assert.True(t, verdict.IsValid, "expected %q to be valid, got errors: %v", sql, verdict.Errors)
	}
}

func TestValidate_KeywordInsideStringLiteralStillRejected(t *testing.T) {
	t.Parallel()
	// Lexical classification does not see literal boundaries. This is the
	// documented false-positive tradeoff.
	verdict := pgValidator().Validate("SELECT body FROM notes WHERE body = 'please DROP me' LIMIT 1")
	assert.False(t, verdict.IsValid)
	assert.Contains(t, joinedErrors(verdict), "DROP")
}

func TestValidate_BlockedFunctions(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sql      string
		function string
	}{
		{"SELECT pg_read_file('/etc/passwd')", "pg_read_file"},
		{"SELECT PG_SLEEP(10)", "pg_sleep"},
		{"SELECT * FROM dblink('conn', 'SELECT 1') AS t(a int)", "dblink"},
		{"SELECT lo_export(123, '/tmp/out')", "lo_export"},
		{"SELECT pg_terminate_backend(42)", "pg_terminate_backend"},
	}
	for _, tc := range cases {
		verdict := pgValidator().Validate(tc.sql)
		assert.False(t, verdict.IsValid, "expected %q to be rejected", tc.sql)
		assert.Contains(t, joinedErrors(verdict), tc.function)
	}
}

func TestValidate_FunctionNameWithoutCallIsNotAFunction(t *testing.T) {
	t.Parallel()
	// A bare column that happens to share a dangerous function's name only
	// matters when it is called.
	verdict := pgValidator().Validate("SELECT pg_sleep FROM metrics LIMIT 1")
	assert.True(t, verdict.IsValid, "got errors: %v", verdict.Errors)
}

func TestValidate_MultipleStatements(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT 1; SELECT 2")
	assert.False(t, verdict.IsValid)
	assert.Contains(t, joinedErrors(verdict), "statements")
}

func TestValidate_TrailingSemicolonAllowed(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT 1;   ")
	assert.True(t, verdict.IsValid, "got errors: %v", verdict.Errors)
}

func TestValidate_SemicolonThenDropReportsBoth(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT 1; DROP TABLE x;")
	assert.False(t, verdict.IsValid)
	all := joinedErrors(verdict)
	assert.Contains(t, all, "DROP")
	assert.Contains(t, all, "statements")
}

func TestValidate_WarningsForUnboundedSelectStar(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT * FROM customers")
	assert.True(t, verdict.IsValid)
	assert.Empty(t, verdict.Errors)
	require.Len(t, verdict.Warnings, 2)
	assert.Contains(t, verdict.Warnings[0], "LIMIT")
	assert.Contains(t, verdict.Warnings[1], "SELECT *")
}

func TestValidate_NoWarningsWhenBoundedAndExplicit(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT id FROM customers LIMIT 5")
	assert.True(t, verdict.IsValid)
	assert.Empty(t, verdict.Warnings)
}

func TestValidate_ExplainAllowed(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("EXPLAIN SELECT id FROM customers")
	assert.True(t, verdict.IsValid, "got errors: %v", verdict.Errors)
	// EXPLAIN output is tiny; no row-bound warning applies.
	for _, w := range verdict.Warnings {
		assert.NotContains(t, w, "LIMIT")
	}
}

func TestValidate_ExplainAnalyzeRejected(t *testing.T) {
	t.Parallel()
	// EXPLAIN ANALYZE executes the statement, so ANALYZE stays blocked.
	verdict := pgValidator().Validate("EXPLAIN ANALYZE SELECT 1")
	assert.False(t, verdict.IsValid)
	assert.Contains(t, joinedErrors(verdict), "ANALYZE")
}

func TestValidate_CTEAllowed(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("WITH recent AS (SELECT id FROM orders LIMIT 10) SELECT * FROM recent")
	assert.True(t, verdict.IsValid, "got errors: %v", verdict.Errors)
}

func TestValidate_MutatingCTERejected(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("WITH u AS (UPDATE t SET x = 1 RETURNING id) SELECT * FROM u")
	assert.False(t, verdict.IsValid)
	assert.Contains(t, joinedErrors(verdict), "UPDATE")
}

func TestValidate_MutationHiddenInComments(t *testing.T) {
	t.Parallel()
	// The keyword scan runs on the comment-stripped copy; these can only be
	// caught by the raw-text structural patterns.
	block := pgValidator().Validate("SELECT 1 /* DROP TABLE x */ LIMIT 1")
	assert.False(t, block.IsValid)
	assert.Contains(t, joinedErrors(block), "comment")

	line := pgValidator().Validate("SELECT 1 -- drop table x")
	assert.False(t, line.IsValid)
	assert.Contains(t, joinedErrors(line), "comment")
}

func TestValidate_CategoryKeywords(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sql      string
		category string
	}{
		{"LOCK TABLE t IN EXCLUSIVE MODE", "locking"},
		{"VACUUM FULL t", "maintenance"},
		{"NOTIFY events, 'hi'", "messaging"},
		{"SET search_path TO evil", "configuration"},
		{"CALL do_things()", "procedural"},
		{"BEGIN", "transaction"},
	}
	for _, tc := range cases {
		verdict := pgValidator().Validate(tc.sql)
		assert.False(t, verdict.IsValid, "expected %q to be rejected", tc.sql)
		assert.Contains(t, joinedErrors(verdict), tc.category)
	}
}

func TestValidate_DollarQuotedBlock(t *testing.T) {
	t.Parallel()
	verdict := pgValidator().Validate("SELECT $$ nested body $$")
	assert.False(t, verdict.IsValid)
	assert.Contains(t, joinedErrors(verdict), "procedural")
}

func TestValidate_MSSQLDangerousSurface(t *testing.T) {
	t.Parallel()
	cases := []string{
		"SELECT * FROM OPENROWSET('SQLNCLI', 'Server=.;', 'SELECT 1')",
		"EXEC xp_cmdshell 'dir'",
		"SELECT * FROM t WITH (UPDLOCK)",
		"WAITFOR DELAY '00:00:10'",
		"BACKUP DATABASE x TO DISK = 'share'",
		"USE master",
	}
	for _, sql := range cases {
		verdict := msValidator().Validate(sql)
		assert.False(t, verdict.IsValid, "expected %q to be rejected", sql)
	}
}

func TestValidate_MSSQLTopSatisfiesRowBound(t *testing.T) {
	t.Parallel()
	unbounded := msValidator().Validate("SELECT name FROM sys.tables")
	assert.True(t, unbounded.IsValid)
	require.NotEmpty(t, unbounded.Warnings)
	assert.Contains(t, unbounded.Warnings[0], "TOP")

	bounded := msValidator().Validate("SELECT TOP 5 name FROM sys.tables")
	assert.True(t, bounded.IsValid)
	assert.Empty(t, bounded.Warnings)
}

func TestValidate_IsValidMirrorsErrors(t *testing.T) {
	t.Parallel()
	queries := []string{
		"",
		"SELECT 1",
		"SELECT * FROM customers",
		"DELETE FROM customers",
		"SELECT 1; DROP TABLE x;",
		"EXPLAIN SELECT 1",
		"SET work_mem = '1GB'",
	}
	for _, sql := range queries {
		verdict := pgValidator().Validate(sql)
		assert.Equal(t, len(verdict.Errors) == 0, verdict.IsValid, "IsValid out of sync for %q", sql)
	}
}

func TestValidate_PolicyExtensions(t *testing.T) {
	t.Parallel()
	rules := PostgresRuleset().
		WithBlockedKeywords([]string{"forbidden_view"}).
		WithBlockedFunctions([]string{"escalate"})
	v := NewValidator(rules, 10_000)

	byKeyword := v.Validate("SELECT * FROM forbidden_view LIMIT 1")
	assert.False(t, byKeyword.IsValid)
	assert.Contains(t, joinedErrors(byKeyword), "policy")

	byFunction := v.Validate("SELECT escalate(1)")
	assert.False(t, byFunction.IsValid)
	assert.Contains(t, joinedErrors(byFunction), "escalate")

	// Extensions never loosen the base tables.
	assert.False(t, v.Validate("DROP TABLE t").IsValid)
}

func TestCheck_ValidReturnsNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, pgValidator().Check("SELECT 1"))
}

func TestCheck_InvalidReturnsKindValidation(t *testing.T) {
	t.Parallel()
	err := pgValidator().Check("DELETE FROM customers")
	require.Error(t, err)

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, KindValidation, ge.Kind)
	assert.NotEmpty(t, ge.Details)
	assert.Contains(t, err.Error(), "DELETE")
}
