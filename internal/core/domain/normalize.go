package domain

import (
	"regexp"
	"strings"
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// Normalize produces the analysis copy of a query: block and line comments
// stripped, runs of whitespace collapsed to single spaces, upper-cased,
// trimmed. The original text is never touched; execution always uses it,
// not the normalized copy.
//
// This is lexical: comment markers or keywords inside string literals are
// treated like real tokens, which can reject safe queries whose literals
// contain a blocked word. Accepted as a best-effort layer.
func Normalize(sql string) string {
	out := blockCommentRe.ReplaceAllString(sql, " ")
	out = lineCommentRe.ReplaceAllString(out, " ")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.ToUpper(strings.TrimSpace(out))
}

// FirstKeyword returns the leading token of a normalized query, with any
// opening parentheses stripped so "(SELECT 1)" still reads as SELECT.
func FirstKeyword(normalized string) string {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimLeft(fields[0], "(")
}

// SplitStatements splits a normalized query on semicolons and returns the
// non-empty segments. A single trailing semicolon therefore still counts as
// one statement.
func SplitStatements(normalized string) []string {
	parts := strings.Split(normalized, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func upperAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToUpper(strings.TrimSpace(w))
	}
	return out
}
