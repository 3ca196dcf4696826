package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeIdentifier_PassesCleanNames(t *testing.T) {
	t.Parallel()
	for _, id := range []string{
		"orders",
		"schema.table",
		"public.customers",
		"Order_Items_2024",
		"dbo.SalesLT.Customer",
	} {
		got, err := SanitizeIdentifier(id)
		require.NoError(t, err, "expected %q to pass", id)
		assert.Equal(t, id, got, "identifier must come back unchanged")
	}
}

func TestSanitizeIdentifier_RejectsHostileInput(t *testing.T) {
	t.Parallel()
	for _, id := range []string{
		"orders; DROP",
		"orders--",
		"orders name",
		`orders"`,
		"orders'",
		"orders)",
		"naïve",
	} {
		_, err := SanitizeIdentifier(id)
		require.Error(t, err, "expected %q to be rejected", id)

		var ge *Error
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, KindIdentifier, ge.Kind)
	}
}

func TestSanitizeIdentifier_RejectsEmpty(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"", "   "} {
		_, err := SanitizeIdentifier(id)
		assert.Error(t, err)
	}
}

func TestSanitizeIdentifier_RejectsOverlong(t *testing.T) {
	t.Parallel()
	_, err := SanitizeIdentifier(strings.Repeat("a", 129))
	require.Error(t, err)

	_, err = SanitizeIdentifier(strings.Repeat("a", 128))
	assert.NoError(t, err)
}

func TestSanitizeIdentifier_NeverStrips(t *testing.T) {
	t.Parallel()
	// Reject-on-mismatch: a partially clean identifier is an error, never
	// silently truncated to its clean prefix.
	_, err := SanitizeIdentifier("customers;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customers;")
}
