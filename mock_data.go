package main

import "github.com/lucasmenegazzo-bix/valid8-onboarding/models"

// Canned fixtures served by the mock auth/profile endpoints and by the
// provider clients when no credential is configured.

var mockUser = models.UserProfile{
	Id:        "usr_001",
	Username:  "lmenegazzo",
	FirstName: "Lucas",
	LastName:  "Menegazzo",
	Email:     "lucas.menegazzo@example.com",
}

const mockSessionToken = "sess_abc123"
const mockAccessToken = "tok_xyz789"

// mockIdScan mirrors what the document-extraction step would return.
var mockIdScan = models.CanonicalIdentityFields{
	FullName:       "Lucas Menegazzo",
	Birthdate:      "1991-03-22",
	Gender:         "M",
	IdType:         "Driver License",
	IdNumber:       "D1234567",
	ExpirationDate: "2030-01-01",
}

// mockPersonaFields is the raw Persona field payload returned in mock mode.
// Values intentionally use the {value: ...} wrapper shape Persona sends.
var mockPersonaFields = map[string]any{
	"name-first":            map[string]any{"value": "Lucas"},
	"name-last":             map[string]any{"value": "Menegazzo"},
	"birthdate":             map[string]any{"value": "1991-03-22"},
	"sex":                   map[string]any{"value": "M"},
	"identification-class":  map[string]any{"value": "Driver License"},
	"identification-number": map[string]any{"value": "D1234567"},
	"expiration-date":       map[string]any{"value": "2030-01-01"},
}

// mockOnfidoFields is the raw Onfido document-report payload returned in
// mock mode.
var mockOnfidoFields = map[string]any{
	"first_name":       "Lucas",
	"last_name":        "Menegazzo",
	"date_of_birth":    "1991-03-22",
	"gender":           "M",
	"document_type":    "Driver License",
	"document_numbers": []any{map[string]any{"type": "document_number", "value": "D1234567"}},
	"date_of_expiry":   "2030-01-01",
}
