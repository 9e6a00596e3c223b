package models

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type MfaRequest struct {
	Code string `json:"code"`
}

type PersonalInfoRequest struct {
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Aliases   []string `json:"aliases,omitempty"`
	Street    string   `json:"street,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	AddrStart string   `json:"addr_start,omitempty"`
	AddrEnd   string   `json:"addr_end,omitempty"`
}

type EducationRequest struct {
	Level          string `json:"level"`
	Institution    string `json:"institution,omitempty"`
	FieldOfStudy   string `json:"field_of_study,omitempty"`
	GraduationYear string `json:"graduation_year,omitempty"`
}

type EmploymentRequest struct {
	Employer  string `json:"employer"`
	Title     string `json:"title"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Current   bool   `json:"current,omitempty"`
}

type CreateVerificationRequest struct {
	ReferenceId string `json:"reference_id"`
	Provider    string `json:"provider"`
}

// ArtifactPayload carries one base64-encoded artifact over the inbound API.
// Data accepts either a bare base64 string or a data URI; the server strips
// the URI prefix before decoding.
type ArtifactPayload struct {
	Kind        ArtifactKind `json:"kind"`
	Data        string       `json:"data"`
	ContentType string       `json:"content_type,omitempty"`
}

type SubmitArtifactsRequest struct {
	Artifacts []ArtifactPayload `json:"artifacts"`
}
