package domain

import "regexp"

// BlockedCategory labels why a construct is disallowed. The value is the
// human-readable phrase used in error messages.
type BlockedCategory string

const (
	CategoryDataModification   BlockedCategory = "data modification"
	CategorySchemaModification BlockedCategory = "schema modification"
	CategoryPermission         BlockedCategory = "permission change"
	CategoryTransactionControl BlockedCategory = "transaction control"
	CategoryLocking            BlockedCategory = "locking"
	CategoryMaintenance        BlockedCategory = "maintenance"
	CategoryMessaging          BlockedCategory = "messaging"
	CategoryConfiguration      BlockedCategory = "configuration change"
	CategoryProceduralCode     BlockedCategory = "procedural code"
	CategoryDangerousFunction  BlockedCategory = "dangerous function"
	CategoryMultipleStatements BlockedCategory = "multiple statements"
	CategoryDisallowedStarter  BlockedCategory = "disallowed statement type"

	// CategoryPolicy covers operator-supplied blocklist extensions loaded
	// from the policy file, on top of the built-in dialect tables.
	CategoryPolicy BlockedCategory = "blocked by policy"
)

// KeywordRule binds a category to the keywords it blocks. Keywords are
// matched whole-word and case-insensitively on the normalized copy.
type KeywordRule struct {
	Category BlockedCategory
	Keywords []string
}

// PatternRule flags a structural construct the keyword tables cannot
// express, such as a mutating verb hidden behind a semicolon or inside a
// comment. OnRaw patterns run against the raw text because the construct
// they look for (comment bodies) does not survive normalization.
type PatternRule struct {
	Category BlockedCategory
	Pattern  *regexp.Regexp
	Message  string
	OnRaw    bool
}

// Ruleset is the injectable table set driving the validator for one dialect.
// Rulesets are immutable after construction; extension returns a copy.
type Ruleset struct {
	Dialect   Dialect
	Starters  []string
	Keywords  []KeywordRule
	Functions []string
	Patterns  []PatternRule
}

// defaultStarters is shared by both dialects: read-only statement heads.
func defaultStarters() []string {
	return []string{"SELECT", "WITH", "EXPLAIN", "SHOW", "DESCRIBE", "DESC"}
}

// PostgresRuleset returns the built-in blocklist tables for PostgreSQL.
func PostgresRuleset() Ruleset {
	return Ruleset{
		Dialect:  DialectPostgres,
		Starters: defaultStarters(),
		Keywords: []KeywordRule{
			{CategoryDataModification, []string{"INSERT", "UPDATE", "DELETE", "TRUNCATE", "MERGE", "COPY"}},
			{CategorySchemaModification, []string{"CREATE", "ALTER", "DROP", "COMMENT"}},
			{CategoryPermission, []string{"GRANT", "REVOKE", "REASSIGN"}},
			{CategoryTransactionControl, []string{"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT"}},
			{CategoryLocking, []string{"LOCK"}},
			{CategoryMaintenance, []string{"VACUUM", "ANALYZE", "CLUSTER", "REINDEX", "CHECKPOINT"}},
			{CategoryMessaging, []string{"NOTIFY", "LISTEN", "UNLISTEN"}},
			{CategoryConfiguration, []string{"SET", "RESET", "LOAD"}},
			{CategoryProceduralCode, []string{"CALL", "EXEC", "EXECUTE", "DO", "DECLARE"}},
		},
		Functions: []string{
			"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
			"pg_execute_server_program", "lo_import", "lo_export",
			"dblink", "dblink_exec", "dblink_connect",
			"pg_terminate_backend", "pg_cancel_backend",
			"pg_reload_conf", "pg_rotate_logfile",
			"pg_sleep", "set_config",
		},
		Patterns: append(sharedPatterns(), []PatternRule{
			{
				Category: CategoryProceduralCode,
				Pattern:  regexp.MustCompile(`\$\$`),
				Message:  "dollar-quoted procedural block",
			},
		}...),
	}
}

// MSSQLRuleset returns the built-in blocklist tables for SQL Server.
func MSSQLRuleset() Ruleset {
	return Ruleset{
		Dialect:  DialectMSSQL,
		Starters: defaultStarters(),
		Keywords: []KeywordRule{
			{CategoryDataModification, []string{"INSERT", "UPDATE", "DELETE", "TRUNCATE", "MERGE", "BULK"}},
			{CategorySchemaModification, []string{"CREATE", "ALTER", "DROP"}},
			{CategoryPermission, []string{"GRANT", "REVOKE", "DENY"}},
			{CategoryTransactionControl, []string{"BEGIN", "COMMIT", "ROLLBACK", "SAVE"}},
			{CategoryLocking, []string{"UPDLOCK", "XLOCK", "TABLOCKX", "HOLDLOCK"}},
			{CategoryMaintenance, []string{"DBCC", "BACKUP", "RESTORE", "CHECKPOINT", "KILL", "SHUTDOWN"}},
			{CategoryMessaging, []string{"SEND", "RECEIVE", "WAITFOR"}},
			{CategoryConfiguration, []string{"SET", "RECONFIGURE", "USE"}},
			{CategoryProceduralCode, []string{"EXEC", "EXECUTE", "DECLARE", "GO"}},
		},
		Functions: []string{
			"xp_cmdshell", "sp_executesql", "sp_configure",
			"sp_oacreate", "sp_oamethod", "sp_addextendedproc",
			"openrowset", "opendatasource", "openquery",
			"xp_regread", "xp_regwrite", "xp_dirtree", "xp_fileexist",
		},
		Patterns: append(sharedPatterns(), []PatternRule{
			{
				Category: CategoryDangerousFunction,
				Pattern:  regexp.MustCompile(`\b(?:XP|SP)_\w+`),
				Message:  "extended or system stored procedure reference",
			},
		}...),
	}
}

// sharedPatterns are the structural checks common to every dialect.
func sharedPatterns() []PatternRule {
	return []PatternRule{
		{
			Category: CategoryMultipleStatements,
			Pattern:  regexp.MustCompile(`;\s*(?:INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|EXEC|EXECUTE|MERGE)\b`),
			Message:  "semicolon followed by a mutating statement",
		},
		{
			Category: CategoryDataModification,
			Pattern:  regexp.MustCompile(`(?is)/\*.*?\b(?:INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE)\b.*?\*/`),
			Message:  "mutating keyword hidden in a block comment",
			OnRaw:    true,
		},
		{
			Category: CategoryDataModification,
			Pattern:  regexp.MustCompile(`(?i)--[^\n]*\b(?:INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE)\b`),
			Message:  "mutating keyword hidden in a line comment",
			OnRaw:    true,
		},
		{
			Category: CategoryDangerousFunction,
			Pattern:  regexp.MustCompile(`\bINTO\s+(?:OUTFILE|DUMPFILE)\b`),
			Message:  "INTO OUTFILE/DUMPFILE file write",
		},
		{
			Category: CategoryDangerousFunction,
			Pattern:  regexp.MustCompile(`\bLOAD_FILE\s*\(`),
			Message:  "LOAD_FILE file read",
		},
	}
}

// WithBlockedKeywords returns a copy of the ruleset with extra whole-word
// blocked keywords appended under CategoryPolicy.
func (r Ruleset) WithBlockedKeywords(keywords []string) Ruleset {
	if len(keywords) == 0 {
		return r
	}
	out := r
	out.Keywords = make([]KeywordRule, len(r.Keywords), len(r.Keywords)+1)
	copy(out.Keywords, r.Keywords)
	out.Keywords = append(out.Keywords, KeywordRule{CategoryPolicy, upperAll(keywords)})
	return out
}

// WithBlockedFunctions returns a copy of the ruleset with extra function
// names appended to the dangerous-function list.
func (r Ruleset) WithBlockedFunctions(functions []string) Ruleset {
	if len(functions) == 0 {
		return r
	}
	out := r
	out.Functions = make([]string, len(r.Functions), len(r.Functions)+len(functions))
	copy(out.Functions, r.Functions)
	out.Functions = append(out.Functions, functions...)
	return out
}

// RulesetFor returns the built-in ruleset for a dialect.
func RulesetFor(dialect Dialect) Ruleset {
	if dialect == DialectMSSQL {
		return MSSQLRuleset()
	}
	return PostgresRuleset()
}
