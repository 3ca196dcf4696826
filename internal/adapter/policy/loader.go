package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/portcullis/portcullis/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	// Version 0 means the field was omitted; treat it as the current format.
	if pol.Version != 0 && pol.Version != 1 {
		return fmt.Errorf("unsupported version %d (expected 1)", pol.Version)
	}

	for i, kw := range pol.Rules.BlockKeywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("rules.block_keywords[%d] is empty", i)
		}
	}
	for i, fn := range pol.Rules.BlockFunctions {
		if strings.TrimSpace(fn) == "" {
			return fmt.Errorf("rules.block_functions[%d] is empty", i)
		}
	}

	// Masks match query results by column name alone, so the same column
	// name carrying two different masks in different tables is ambiguous.
	seen := make(map[string]domain.MaskType)
	for key, tc := range pol.Context.Tables {
		if key == "" {
			return fmt.Errorf("context.tables contains an empty key")
		}
		for col, cc := range tc.Columns {
			if col == "" {
				return fmt.Errorf("context.tables[%q].columns contains an empty key", key)
			}
			if !cc.Mask.Valid() {
				return fmt.Errorf("context.tables[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", key, col, cc.Mask)
			}
			if cc.Mask == "" {
				continue
			}
			if prev, ok := seen[col]; ok && prev != cc.Mask {
				return fmt.Errorf("conflicting masks for column %q: %q and %q", col, prev, cc.Mask)
			}
			seen[col] = cc.Mask
		}
	}
	return nil
}
