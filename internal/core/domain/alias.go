package domain

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ExtractAliasMap parses a SELECT statement and returns original column
// name → alias for every target with an AS clause, so masking can follow
// renamed columns. Only simple column references count ("Email" AS email,
// c."Email" AS email); expressions are skipped because they never match a
// mask key. Fail-open: any parse error (including non-Postgres dialects)
// yields an empty map and masking falls back to direct name matching.
func ExtractAliasMap(sql string) map[string]string {
	aliases := make(map[string]string)

	tree, err := pg_query.Parse(sql)
	if err != nil || len(tree.Stmts) == 0 {
		return aliases
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return aliases
	}

	sel, ok := stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return aliases
	}

	for _, target := range sel.SelectStmt.TargetList {
		rt, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || rt.ResTarget == nil {
			continue
		}

		alias := rt.ResTarget.Name
		if alias == "" {
			continue
		}

		val := rt.ResTarget.Val
		if val == nil {
			continue
		}

		cr, ok := val.Node.(*pg_query.Node_ColumnRef)
		if !ok || cr.ColumnRef == nil {
			continue // expression target, not a plain column
		}

		// The bare column name is the last field of the ColumnRef:
		// "Email" → [String{"Email"}], c."Email" → [String{"c"}, String{"Email"}].
		fields := cr.ColumnRef.Fields
		if len(fields) == 0 {
			continue
		}
		str, ok := fields[len(fields)-1].Node.(*pg_query.Node_String_)
		if !ok || str.String_ == nil {
			continue
		}

		colName := str.String_.Sval
		if colName != "" && colName != alias {
			aliases[colName] = alias
		}
	}

	return aliases
}
