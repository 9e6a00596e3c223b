package models

// Provider identifies which third-party verification platform backs a session.
type Provider string

const (
	PersonaProvider Provider = "persona"
	OnfidoProvider  Provider = "onfido"
)

// ParseProvider maps a request value onto a known provider.
// Returns false when the value names no supported provider.
func ParseProvider(value string) (Provider, bool) {
	switch Provider(value) {
	case PersonaProvider:
		return PersonaProvider, true
	case OnfidoProvider:
		return OnfidoProvider, true
	}
	return "", false
}

// SessionState is the orchestration state of a verification session.
// Transitions are forward-only; see StateRank.
type SessionState string

const (
	StateCreated            SessionState = "created"
	StateArtifactsSubmitted SessionState = "artifacts_submitted"
	StateUnderReview        SessionState = "under_review"
	StateCompleted          SessionState = "completed"
	StateFailed             SessionState = "failed"
	StateTimedOut           SessionState = "timed_out"
)

// StateRank defines the partial order over session states. Terminal states
// share the highest rank so that no terminal outcome can overwrite another.
func StateRank(state SessionState) int {
	switch state {
	case StateCreated:
		return 0
	case StateArtifactsSubmitted:
		return 1
	case StateUnderReview:
		return 2
	case StateCompleted, StateFailed, StateTimedOut:
		return 3
	}
	return -1
}

// IsTerminal reports whether no further state change is expected for state.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// ArtifactKind distinguishes the biometric/document payloads of a session.
type ArtifactKind string

const (
	FrontDocument ArtifactKind = "front_document"
	BackDocument  ArtifactKind = "back_document"
	Selfie        ArtifactKind = "selfie"
)

// DefaultArtifactContentType is assumed when the caller does not say what
// the artifact bytes contain.
const DefaultArtifactContentType = "image/jpeg"

// Artifact is one binary payload submitted to a provider. Immutable once
// attached to a session.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	Bytes       []byte       `json:"bytes,omitempty"`
	ContentType string       `json:"content_type"`
}

// VerificationSession tracks one verification attempt against one provider.
type VerificationSession struct {
	SessionId         string                   `json:"session_id"`
	Provider          Provider                 `json:"provider"`
	ReferenceId       string                   `json:"reference_id"`
	State             SessionState             `json:"state"`
	Artifacts         []Artifact               `json:"artifacts,omitempty"`
	NormalizedFields  *CanonicalIdentityFields `json:"normalized_fields,omitempty"`
	RawProviderStatus string                   `json:"raw_provider_status,omitempty"`
}

// ResultStatus is the caller-visible status string for the session. For
// completed sessions the provider's own verdict (completed, declined,
// needs_review, ...) is surfaced rather than a generic label.
func (s *VerificationSession) ResultStatus() string {
	switch s.State {
	case StateCompleted:
		if s.RawProviderStatus != "" {
			return s.RawProviderStatus
		}
		return string(StateCompleted)
	case StateUnderReview:
		return "pending"
	default:
		return string(s.State)
	}
}
