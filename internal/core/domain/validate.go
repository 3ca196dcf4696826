package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	limitClauseRe = regexp.MustCompile(`\bLIMIT\s+\d+`)
	topClauseRe   = regexp.MustCompile(`\bTOP\s*\(?\s*\d+`)
	selectStarRe  = regexp.MustCompile(`\bSELECT\s+\*`)
)

// Verdict is the outcome of gate validation. IsValid is true exactly when
// Errors is empty; Warnings are advisory and never affect validity.
type Verdict struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type compiledKeywordRule struct {
	category BlockedCategory
	re       *regexp.Regexp
}

// Validator classifies query intent for one dialect. It is pure and
// stateless after construction: any number of goroutines may call Validate
// concurrently. All matching runs on the normalized copy except the OnRaw
// structural patterns.
type Validator struct {
	rules     Ruleset
	maxLength int
	starters  map[string]bool
	keywords  []compiledKeywordRule
	functions *regexp.Regexp
}

// NewValidator compiles a ruleset into a validator. maxLength bounds the raw
// query text; zero disables the bound.
func NewValidator(rules Ruleset, maxLength int) *Validator {
	v := &Validator{
		rules:     rules,
		maxLength: maxLength,
		starters:  make(map[string]bool, len(rules.Starters)),
	}
	for _, s := range rules.Starters {
		v.starters[strings.ToUpper(s)] = true
	}
	for _, rule := range rules.Keywords {
		if len(rule.Keywords) == 0 {
			continue
		}
		re := regexp.MustCompile(`\b(?:` + strings.Join(upperAll(rule.Keywords), "|") + `)\b`)
		v.keywords = append(v.keywords, compiledKeywordRule{category: rule.Category, re: re})
	}
	if len(rules.Functions) > 0 {
		v.functions = regexp.MustCompile(`\b(` + strings.Join(upperAll(rules.Functions), "|") + `)\s*\(`)
	}
	return v
}

// Dialect reports which dialect's tables this validator was built from.
func (v *Validator) Dialect() Dialect { return v.rules.Dialect }

// Validate runs every check and accumulates errors; it never returns an
// error itself. Only the empty and length checks short-circuit; everything
// else is evaluated so the caller sees the full picture in one pass.
func (v *Validator) Validate(sql string) Verdict {
	if strings.TrimSpace(sql) == "" {
		return Verdict{Errors: []string{"query is empty"}}
	}
	if v.maxLength > 0 && len(sql) > v.maxLength {
		return Verdict{Errors: []string{
			fmt.Sprintf("query length %d exceeds the maximum of %d characters", len(sql), v.maxLength),
		}}
	}

	normalized := Normalize(sql)
	if normalized == "" {
		return Verdict{Errors: []string{"query contains no SQL statement"}}
	}

	var errs, warnings []string

	starter := FirstKeyword(normalized)
	if !v.starters[starter] {
		errs = append(errs, fmt.Sprintf("statement starting with %q is not allowed (%s)", starter, CategoryDisallowedStarter))
	}

	for _, rule := range v.keywords {
		for _, kw := range distinctMatches(rule.re, normalized) {
			errs = append(errs, fmt.Sprintf("blocked keyword %q (%s)", kw, rule.category))
		}
	}

	if v.functions != nil {
		for _, fn := range distinctSubmatches(v.functions, normalized) {
			errs = append(errs, fmt.Sprintf("blocked function %q (%s)", strings.ToLower(fn), CategoryDangerousFunction))
		}
	}

	for _, p := range v.rules.Patterns {
		target := normalized
		if p.OnRaw {
			target = sql
		}
		if p.Pattern.MatchString(target) {
			errs = append(errs, fmt.Sprintf("%s (%s)", p.Message, p.Category))
		}
	}

	if n := len(SplitStatements(normalized)); n > 1 {
		errs = append(errs, fmt.Sprintf("query contains %d statements, expected exactly one (%s)", n, CategoryMultipleStatements))
	}

	if starter == "SELECT" || starter == "WITH" {
		if !v.hasRowBound(normalized) {
			warnings = append(warnings, "query has no "+v.rowBoundClause()+" clause; the configured row cap will be applied")
		}
	}
	if selectStarRe.MatchString(normalized) {
		warnings = append(warnings, "SELECT * returns every column; consider selecting only the columns you need")
	}

	return Verdict{IsValid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// Check is the throw-style wrapper around Validate: nil when valid,
// otherwise a single KindValidation error carrying the full error list.
func (v *Validator) Check(sql string) error {
	verdict := v.Validate(sql)
	if verdict.IsValid {
		return nil
	}
	return &Error{Kind: KindValidation, Message: "query rejected", Details: verdict.Errors}
}

func (v *Validator) hasRowBound(normalized string) bool {
	if v.rules.Dialect == DialectMSSQL {
		return topClauseRe.MatchString(normalized)
	}
	return limitClauseRe.MatchString(normalized)
}

func (v *Validator) rowBoundClause() string {
	if v.rules.Dialect == DialectMSSQL {
		return "TOP"
	}
	return "LIMIT"
}

// distinctMatches returns each distinct match once, in first-seen order.
func distinctMatches(re *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// distinctSubmatches returns each distinct first capture group once, in
// first-seen order.
func distinctSubmatches(re *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 && !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
