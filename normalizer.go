package main

import (
	"fmt"
	"strings"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"
)

// GenericIdTypeLabel is used when the provider supplies no document class.
const GenericIdTypeLabel = "Government ID"

// NormalizeFields maps a provider's raw field payload onto the canonical
// identity record. It is pure and total: any input shape degrades to empty
// strings rather than erroring.
func NormalizeFields(provider models.Provider, raw map[string]any) models.CanonicalIdentityFields {
	switch provider {
	case models.OnfidoProvider:
		return normalizeOnfidoFields(raw)
	default:
		return normalizePersonaFields(raw)
	}
}

func normalizePersonaFields(raw map[string]any) models.CanonicalIdentityFields {
	idType := fieldValue(raw["identification-class"])
	if idType == "" {
		idType = GenericIdTypeLabel
	}

	return models.CanonicalIdentityFields{
		FullName:       joinName(fieldValue(raw["name-first"]), fieldValue(raw["name-last"])),
		Birthdate:      fieldValue(raw["birthdate"]),
		Gender:         fieldValue(raw["sex"]),
		IdType:         idType,
		IdNumber:       fieldValue(raw["identification-number"]),
		ExpirationDate: fieldValue(raw["expiration-date"]),
	}
}

func normalizeOnfidoFields(raw map[string]any) models.CanonicalIdentityFields {
	idType := fieldValue(raw["document_type"])
	if idType == "" {
		idType = GenericIdTypeLabel
	}

	idNumber := fieldValue(raw["document_number"])
	if idNumber == "" {
		idNumber = firstDocumentNumber(raw["document_numbers"])
	}

	return models.CanonicalIdentityFields{
		FullName:       joinName(fieldValue(raw["first_name"]), fieldValue(raw["last_name"])),
		Birthdate:      fieldValue(raw["date_of_birth"]),
		Gender:         fieldValue(raw["gender"]),
		IdType:         idType,
		IdNumber:       idNumber,
		ExpirationDate: fieldValue(raw["date_of_expiry"]),
	}
}

// fieldValue extracts the scalar from a raw provider field. Providers send
// either a bare scalar or a {"value": ...} wrapper; anything else yields "".
func fieldValue(field any) string {
	switch v := field.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", v)
	case map[string]any:
		inner, ok := v["value"]
		if !ok {
			return ""
		}
		// only unwrap one level; a nested wrapper is malformed
		if _, nested := inner.(map[string]any); nested {
			return ""
		}
		return fieldValue(inner)
	default:
		return ""
	}
}

// joinName concatenates first/last with a single space. When both are empty
// the result is empty, not a lone space.
func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// firstDocumentNumber handles Onfido's document_numbers list shape
// ([{"type": ..., "value": ...}, ...]).
func firstDocumentNumber(field any) string {
	list, ok := field.([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	return fieldValue(list[0])
}
