package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LimitOutcome reports the result of a row-bound rewrite. LimitApplied is
// true exactly when RewrittenQuery differs from the input.
type LimitOutcome struct {
	RewrittenQuery string `json:"rewritten_query"`
	LimitApplied   bool   `json:"limit_applied"`
}

var (
	limitValueRe = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)
	topValueRe   = regexp.MustCompile(`(?i)\bTOP\s*\(?\s*(\d+)\s*\)?`)
	selectHeadRe = regexp.MustCompile(`(?i)^\s*SELECT(?:\s+ALL\b|\s+DISTINCT\b)?`)
	digitRunRe   = regexp.MustCompile(`\d+`)
)

// EnforceRowBound applies the dialect-appropriate rewrite. The rewrite is
// the first line of defense; the gateway's streaming row cap remains the
// authoritative bound either way.
func EnforceRowBound(dialect Dialect, sql string, maxRows int) LimitOutcome {
	if dialect == DialectMSSQL {
		return EnforceTop(sql, maxRows)
	}
	return EnforceLimit(sql, maxRows)
}

// EnforceLimit bounds a query through its LIMIT clause. An existing
// LIMIT n with n <= maxRows is left alone; any oversized numeric literal is
// replaced in place with maxRows; a SELECT/WITH statement without a LIMIT
// gets " LIMIT maxRows" appended (after stripping a trailing semicolon).
// Non-SELECT/WITH starters, e.g. EXPLAIN, are never rewritten.
// Idempotent: a second application with the same maxRows changes nothing.
func EnforceLimit(sql string, maxRows int) LimitOutcome {
	if maxRows <= 0 {
		return LimitOutcome{RewrittenQuery: sql}
	}

	if limitValueRe.MatchString(sql) {
		rewritten := limitValueRe.ReplaceAllStringFunc(sql, func(clause string) string {
			return clampClauseValue(clause, maxRows)
		})
		return LimitOutcome{RewrittenQuery: rewritten, LimitApplied: rewritten != sql}
	}

	starter := FirstKeyword(Normalize(sql))
	if starter != "SELECT" && starter != "WITH" {
		return LimitOutcome{RewrittenQuery: sql}
	}

	trimmed := strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
	return LimitOutcome{
		RewrittenQuery: fmt.Sprintf("%s LIMIT %d", trimmed, maxRows),
		LimitApplied:   true,
	}
}

// EnforceTop is the SQL Server counterpart: clamp an oversized TOP n or
// TOP (n), or inject TOP (maxRows) right after the leading
// SELECT [ALL|DISTINCT]. WITH-started statements are not rewritten (there is
// no single insertion point to find lexically); the gateway cap bounds them.
// Idempotent like EnforceLimit.
func EnforceTop(sql string, maxRows int) LimitOutcome {
	if maxRows <= 0 {
		return LimitOutcome{RewrittenQuery: sql}
	}

	if topValueRe.MatchString(sql) {
		rewritten := topValueRe.ReplaceAllStringFunc(sql, func(clause string) string {
			return clampClauseValue(clause, maxRows)
		})
		return LimitOutcome{RewrittenQuery: rewritten, LimitApplied: rewritten != sql}
	}

	loc := selectHeadRe.FindStringIndex(sql)
	if loc == nil {
		return LimitOutcome{RewrittenQuery: sql}
	}
	rewritten := fmt.Sprintf("%s TOP (%d)%s", sql[:loc[1]], maxRows, sql[loc[1]:])
	return LimitOutcome{RewrittenQuery: rewritten, LimitApplied: true}
}

// clampClauseValue replaces the numeric literal inside a LIMIT/TOP clause
// with maxRows when it exceeds it, keeping the clause text otherwise intact.
// Unparseable (overlong) literals are clamped too.
func clampClauseValue(clause string, maxRows int) string {
	digits := digitRunRe.FindString(clause)
	if n, err := strconv.Atoi(digits); err == nil && n <= maxRows {
		return clause
	}
	return digitRunRe.ReplaceAllString(clause, strconv.Itoa(maxRows))
}
