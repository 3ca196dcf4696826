package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// maxIdentifierLength covers both dialects: SQL Server allows 128
// characters, Postgres 63.
const maxIdentifierLength = 128

// SanitizeIdentifier vets a caller-supplied schema/table/column name before
// it reaches a catalog lookup. Reject-on-mismatch: anything outside
// [A-Za-z0-9_.] fails instead of being stripped. Returns the input
// unchanged on success.
func SanitizeIdentifier(identifier string) (string, error) {
	if strings.TrimSpace(identifier) == "" {
		return "", NewError(KindIdentifier, "identifier is empty")
	}
	if len(identifier) > maxIdentifierLength {
		return "", NewError(KindIdentifier,
			fmt.Sprintf("identifier %q exceeds %d characters", identifier[:maxIdentifierLength]+"…", maxIdentifierLength))
	}
	if !identifierRe.MatchString(identifier) {
		return "", NewError(KindIdentifier,
			fmt.Sprintf("identifier %q contains characters outside [A-Za-z0-9_.]", identifier))
	}
	return identifier, nil
}
