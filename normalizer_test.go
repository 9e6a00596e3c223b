package main

import (
	"testing"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/stretchr/testify/require"
)

func TestNormalizePersonaFields(t *testing.T) {
	fields := NormalizeFields(models.PersonaProvider, mockPersonaFields)

	require.Equal(t, "Lucas Menegazzo", fields.FullName)
	require.Equal(t, "1991-03-22", fields.Birthdate)
	require.Equal(t, "M", fields.Gender)
	require.Equal(t, "Driver License", fields.IdType)
	require.Equal(t, "D1234567", fields.IdNumber)
	require.Equal(t, "2030-01-01", fields.ExpirationDate)
}

func TestNormalizePersonaFieldsBareScalars(t *testing.T) {
	raw := map[string]any{
		"name-first": "Ana",
		"name-last":  "Souza",
		"birthdate":  "1988-07-01",
	}
	fields := NormalizeFields(models.PersonaProvider, raw)

	require.Equal(t, "Ana Souza", fields.FullName)
	require.Equal(t, "1988-07-01", fields.Birthdate)
	require.Equal(t, GenericIdTypeLabel, fields.IdType)
	require.Empty(t, fields.IdNumber)
}

func TestNormalizeOnfidoFields(t *testing.T) {
	fields := NormalizeFields(models.OnfidoProvider, mockOnfidoFields)

	require.Equal(t, "Lucas Menegazzo", fields.FullName)
	require.Equal(t, "1991-03-22", fields.Birthdate)
	require.Equal(t, "M", fields.Gender)
	require.Equal(t, "Driver License", fields.IdType)
	require.Equal(t, "D1234567", fields.IdNumber)
	require.Equal(t, "2030-01-01", fields.ExpirationDate)
}

func TestNormalizeOnfidoFieldsPrefersScalarDocumentNumber(t *testing.T) {
	raw := map[string]any{
		"document_number":  "X99",
		"document_numbers": []any{map[string]any{"value": "Y11"}},
	}
	fields := NormalizeFields(models.OnfidoProvider, raw)
	require.Equal(t, "X99", fields.IdNumber)
}

func TestNormalizeEmptyPayload(t *testing.T) {
	fields := NormalizeFields(models.PersonaProvider, nil)
	require.Empty(t, fields.FullName)
	require.Empty(t, fields.Birthdate)
	require.Equal(t, GenericIdTypeLabel, fields.IdType)

	fields = NormalizeFields(models.OnfidoProvider, map[string]any{})
	require.Empty(t, fields.IdNumber)
	require.Equal(t, GenericIdTypeLabel, fields.IdType)
}

func TestFieldValue(t *testing.T) {
	require.Equal(t, "plain", fieldValue("plain"))
	require.Equal(t, "wrapped", fieldValue(map[string]any{"value": "wrapped"}))
	require.Equal(t, "42", fieldValue(float64(42)))
	require.Equal(t, "true", fieldValue(true))
	require.Empty(t, fieldValue(nil))
	require.Empty(t, fieldValue(map[string]any{"other": "x"}))
	// a wrapper inside a wrapper is malformed, not unwrapped further
	require.Empty(t, fieldValue(map[string]any{"value": map[string]any{"value": "deep"}}))
	require.Empty(t, fieldValue([]any{"list"}))
}

func TestJoinName(t *testing.T) {
	require.Equal(t, "Lucas Menegazzo", joinName("Lucas", "Menegazzo"))
	require.Equal(t, "Lucas", joinName("Lucas", ""))
	require.Equal(t, "Menegazzo", joinName("", "Menegazzo"))
	require.Empty(t, joinName("", ""))
}

func TestFirstDocumentNumber(t *testing.T) {
	require.Equal(t, "D1", firstDocumentNumber([]any{map[string]any{"value": "D1"}, map[string]any{"value": "D2"}}))
	require.Empty(t, firstDocumentNumber([]any{}))
	require.Empty(t, firstDocumentNumber("not-a-list"))
	require.Empty(t, firstDocumentNumber(nil))
}
