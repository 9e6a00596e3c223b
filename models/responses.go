package models

type LoginResponse struct {
	SessionToken string `json:"session_token"`
	MfaRequired  bool   `json:"mfa_required"`
}

type MfaResponse struct {
	AccessToken string      `json:"access_token"`
	User        UserProfile `json:"user"`
}

type SavedResponse struct {
	Saved   bool   `json:"saved"`
	Message string `json:"message"`
}

type CreateVerificationResponse struct {
	SessionId string `json:"session_id"`
	Provider  string `json:"provider"`
}

type VerificationResultResponse struct {
	SessionId string                   `json:"session_id"`
	Status    string                   `json:"status"`
	Fields    *CanonicalIdentityFields `json:"fields,omitempty"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

type LivenessResponse struct {
	Passed bool `json:"passed"`
}
