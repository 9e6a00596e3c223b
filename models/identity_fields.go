package models

// CanonicalIdentityFields is the single identity record all provider
// responses are normalized into. Absent values are empty strings, never nil.
type CanonicalIdentityFields struct {
	FullName       string `json:"full_name"`
	Birthdate      string `json:"birthdate"`
	Gender         string `json:"gender"`
	IdType         string `json:"id_type"`
	IdNumber       string `json:"id_number"`
	ExpirationDate string `json:"expiration_date"`
}
