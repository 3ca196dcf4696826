package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType is a column masking strategy applied to gate results before they
// leave the server.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether the MaskType is a recognised strategy. The zero
// value "" means "no mask" and is valid.
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a value according to the mask type. Masked values may
// change type (e.g. int -> string for hash/partial). MaskNull returns nil,
// indistinguishable from SQL NULL.
func ApplyMask(value any, maskType MaskType) any {
	if value == nil {
		return nil
	}
	switch maskType {
	case MaskRedact:
		return "***"
	case MaskHash:
		h := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
		return fmt.Sprintf("%x", h)
	case MaskPartial:
		return maskPartial(value)
	case MaskNull:
		return nil
	default:
		return value
	}
}

// maskPartial reveals only the last 4 characters, replacing the rest with
// asterisks. Safe for multi-byte strings.
func maskPartial(value any) string {
	runes := []rune(fmt.Sprintf("%v", value))
	if len(runes) <= 4 {
		return "***" + string(runes)
	}
	masked := make([]rune, len(runes))
	for i := range masked {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// MaskRows applies column masks to result rows in place. Matching is by
// column name only, without table qualification.
func MaskRows(rows []map[string]any, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, maskType := range masks {
			if val, exists := row[col]; exists {
				row[col] = ApplyMask(val, maskType)
			}
		}
	}
}

// ExpandMasksWithAliases widens a mask map so that aliases of masked columns
// are masked too: with a mask on "email", `SELECT email AS e` masks "e". An
// explicit mask on the alias name itself wins over the expansion. The input
// map is not modified.
func ExpandMasksWithAliases(masks map[string]MaskType, aliases map[string]string) map[string]MaskType {
	if len(masks) == 0 || len(aliases) == 0 {
		return masks
	}
	out := make(map[string]MaskType, len(masks)+len(aliases))
	for col, m := range masks {
		out[col] = m
	}
	for col, alias := range aliases {
		m, masked := masks[col]
		if !masked {
			continue
		}
		if _, explicit := out[alias]; !explicit {
			out[alias] = m
		}
	}
	return out
}
