package main

import (
	"context"
	"fmt"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"
)

// StatusResult is a provider status snapshot: the raw status string plus the
// raw extracted fields, decoded once at the client boundary.
type StatusResult struct {
	RawStatus string
	RawFields map[string]any
}

// ProviderClient is the per-provider transport for the verification
// protocol. Implementations are authenticated with a provider credential;
// when no credential is configured every call short-circuits to a
// deterministic mock result and never performs network I/O, so the
// orchestrator stays provider-and-mode agnostic.
type ProviderClient interface {
	Provider() models.Provider

	// CreateSession opens a remote verification container (inquiry,
	// applicant) for the reference id and returns its provider-assigned id.
	CreateSession(ctx context.Context, referenceId string) (string, error)

	// ResolveSubResources returns the provider handle each artifact kind
	// must be submitted to. Kinds with no handle are simply absent; the
	// orchestrator skips them.
	ResolveSubResources(ctx context.Context, sessionId string) (map[models.ArtifactKind]string, error)

	// SubmitArtifact uploads one artifact to its resolved sub-resource.
	SubmitArtifact(ctx context.Context, sessionId, subResource string, artifact models.Artifact) error

	// SubmitForReview hands the session over for provider-side review.
	SubmitForReview(ctx context.Context, sessionId string) error

	// FetchStatus reads the current raw status and extracted fields.
	FetchStatus(ctx context.Context, sessionId string) (StatusResult, error)

	// IsTerminalStatus reports whether status belongs to the provider's
	// terminal set.
	IsTerminalStatus(status string) bool
}

// checkArtifact enforces the shared submission preconditions and fills in
// the default content type.
func checkArtifact(artifact *models.Artifact) error {
	if len(artifact.Bytes) == 0 {
		return fmt.Errorf("artifact %s has no payload", artifact.Kind)
	}
	if artifact.ContentType == "" {
		artifact.ContentType = models.DefaultArtifactContentType
	}
	return nil
}
