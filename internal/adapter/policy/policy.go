package policy

import (
	"fmt"

	"github.com/portcullis/portcullis/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file:
// blocklist extensions for the query gate, data dictionary context and
// column-level masking.
type Policy struct {
	Version int           `yaml:"version"`
	Rules   RulesConfig   `yaml:"rules"`
	Context ContextConfig `yaml:"context"`
}

// RulesConfig extends the built-in dialect ruleset. Entries only ever
// tighten the gate; nothing in the policy file can unblock a built-in rule.
type RulesConfig struct {
	BlockKeywords  []string `yaml:"block_keywords"`
	BlockFunctions []string `yaml:"block_functions"`
}

// ContextConfig maps fully-qualified table names (schema.table) to
// business descriptions that are merged into MCP tool responses.
type ContextConfig struct {
	Tables map[string]TableContext `yaml:"tables"`
}

// TableContext provides business descriptions and masking rules for a table and its columns.
type TableContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's business description and optional mask directive.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML supports both the struct format and a plain-string shorthand.
//
//	columns:
//	  mrr: "MRR in cents"           # shorthand: plain string → ColumnContext{Description: "MRR in cents"}
//	  ssn:                          # struct with optional mask
//	    description: "SSN"
//	    mask: "redact"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	// Decode as struct (avoid infinite recursion by using an alias type).
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}

// ExtendRuleset layers the rules section on top of a built-in dialect
// ruleset. Safe to call on a nil Policy; the base is returned unchanged.
func (p *Policy) ExtendRuleset(base domain.Ruleset) domain.Ruleset {
	if p == nil {
		return base
	}
	return base.
		WithBlockedKeywords(p.Rules.BlockKeywords).
		WithBlockedFunctions(p.Rules.BlockFunctions)
}

// Annotations converts the context section into the form the catalog
// service merges into tool responses.
func (p *Policy) Annotations() domain.SchemaAnnotations {
	if p == nil || len(p.Context.Tables) == 0 {
		return nil
	}
	out := make(domain.SchemaAnnotations, len(p.Context.Tables))
	for key, tc := range p.Context.Tables {
		ann := domain.TableAnnotation{Comment: tc.Description}
		for col, cc := range tc.Columns {
			if cc.Description == "" {
				continue
			}
			if ann.Columns == nil {
				ann.Columns = make(map[string]string, len(tc.Columns))
			}
			ann.Columns[col] = cc.Description
		}
		out[key] = ann
	}
	return out
}

// Masks extracts the column-name → mask map applied to query results and
// sample rows. Validation has already rejected conflicting directives, so
// each column name resolves to exactly one mask.
func (p *Policy) Masks() map[string]domain.MaskType {
	if p == nil {
		return nil
	}
	spec := make(map[string]domain.MaskType)
	for _, tc := range p.Context.Tables {
		for col, cc := range tc.Columns {
			if cc.Mask != "" {
				spec[col] = cc.Mask
			}
		}
	}
	return spec
}
