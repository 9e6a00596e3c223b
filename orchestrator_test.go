package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/metrics"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/stretchr/testify/require"
)

// fakeProviderClient scripts provider behavior for orchestration tests.
// FetchStatus consumes statuses in order, repeating the last one.
type fakeProviderClient struct {
	provider   models.Provider
	createId   string
	createErr  error
	resources  map[models.ArtifactKind]string
	resolveErr error
	statuses   []StatusResult
	statusErr  error
	onFetch    func(call int)

	mutex      sync.Mutex
	submitted  []models.ArtifactKind
	reviewed   bool
	fetchCalls int
}

func (f *fakeProviderClient) Provider() models.Provider {
	return f.provider
}

func (f *fakeProviderClient) CreateSession(_ context.Context, _ string) (string, error) {
	return f.createId, f.createErr
}

func (f *fakeProviderClient) ResolveSubResources(_ context.Context, _ string) (map[models.ArtifactKind]string, error) {
	return f.resources, f.resolveErr
}

func (f *fakeProviderClient) SubmitArtifact(_ context.Context, _, _ string, artifact models.Artifact) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.submitted = append(f.submitted, artifact.Kind)
	return nil
}

func (f *fakeProviderClient) SubmitForReview(_ context.Context, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.reviewed = true
	return nil
}

func (f *fakeProviderClient) FetchStatus(_ context.Context, _ string) (StatusResult, error) {
	f.mutex.Lock()
	call := f.fetchCalls
	f.fetchCalls++
	f.mutex.Unlock()

	if f.onFetch != nil {
		f.onFetch(call)
	}
	if f.statusErr != nil {
		return StatusResult{}, f.statusErr
	}
	if call >= len(f.statuses) {
		call = len(f.statuses) - 1
	}
	return f.statuses[call], nil
}

func (f *fakeProviderClient) IsTerminalStatus(status string) bool {
	return personaTerminalStatuses[status]
}

func newTestOrchestrator(client *fakeProviderClient, pollAttempts uint) (*Orchestrator, *InMemoryVerificationStorage) {
	storage := NewInMemoryVerificationStorage()
	clients := map[models.Provider]ProviderClient{client.provider: client}
	orchestrator := NewOrchestrator(storage, clients, time.Millisecond, pollAttempts, metrics.NewCollector())
	return orchestrator, storage
}

func validTestArtifacts() []models.Artifact {
	return []models.Artifact{
		{Kind: models.FrontDocument, Bytes: []byte{0x01}},
		{Kind: models.BackDocument, Bytes: []byte{0x02}},
		{Kind: models.Selfie, Bytes: []byte{0x03}},
	}
}

func TestStartVerificationStoresCreatedSession(t *testing.T) {
	client := &fakeProviderClient{provider: models.PersonaProvider, createId: "inq_1"}
	orchestrator, storage := newTestOrchestrator(client, 3)

	session, err := orchestrator.StartVerification(context.Background(), "ref-1", models.PersonaProvider)
	require.NoError(t, err)
	require.Equal(t, "inq_1", session.SessionId)
	require.Equal(t, models.StateCreated, session.State)

	stored, err := storage.GetSession(context.Background(), "inq_1")
	require.NoError(t, err)
	require.Equal(t, "ref-1", stored.ReferenceId)
}

func TestStartVerificationCreationFailure(t *testing.T) {
	client := &fakeProviderClient{provider: models.PersonaProvider, createErr: fmt.Errorf("401 unauthorized")}
	orchestrator, _ := newTestOrchestrator(client, 3)

	_, err := orchestrator.StartVerification(context.Background(), "ref-1", models.PersonaProvider)
	require.ErrorIs(t, err, ErrSessionCreationFailed)
	require.Contains(t, err.Error(), "401 unauthorized")
}

func TestStartVerificationEmptySessionId(t *testing.T) {
	client := &fakeProviderClient{provider: models.PersonaProvider}
	orchestrator, _ := newTestOrchestrator(client, 3)

	_, err := orchestrator.StartVerification(context.Background(), "ref-1", models.PersonaProvider)
	require.ErrorIs(t, err, ErrSessionCreationFailed)
}

func TestStartVerificationUnknownProvider(t *testing.T) {
	client := &fakeProviderClient{provider: models.PersonaProvider, createId: "inq_1"}
	orchestrator, _ := newTestOrchestrator(client, 3)

	_, err := orchestrator.StartVerification(context.Background(), "ref-1", models.OnfidoProvider)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRunVerificationCompletes(t *testing.T) {
	client := &fakeProviderClient{
		provider: models.PersonaProvider,
		createId: "inq_1",
		resources: map[models.ArtifactKind]string{
			models.FrontDocument: "ver_doc",
			models.BackDocument:  "ver_doc",
			models.Selfie:        "ver_selfie",
		},
		statuses: []StatusResult{
			{RawStatus: "processing"},
			{RawStatus: "completed", RawFields: mockPersonaFields},
		},
	}
	orchestrator, _ := newTestOrchestrator(client, 5)
	ctx := context.Background()

	_, err := orchestrator.StartVerification(ctx, "ref-1", models.PersonaProvider)
	require.NoError(t, err)

	session, err := orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.NoError(t, err)
	require.Equal(t, models.StateCompleted, session.State)
	require.Equal(t, "completed", session.ResultStatus())
	require.NotNil(t, session.NormalizedFields)
	require.Equal(t, "Lucas Menegazzo", session.NormalizedFields.FullName)
	require.Equal(t, "Driver License", session.NormalizedFields.IdType)

	require.True(t, client.reviewed)
	require.Len(t, client.submitted, 3)
	require.Equal(t, 2, client.fetchCalls)
}

func TestRunVerificationSurfacesDeclinedVerdict(t *testing.T) {
	client := &fakeProviderClient{
		provider: models.PersonaProvider,
		createId: "inq_1",
		statuses: []StatusResult{{RawStatus: "declined", RawFields: mockPersonaFields}},
	}
	orchestrator, _ := newTestOrchestrator(client, 5)
	ctx := context.Background()

	_, err := orchestrator.StartVerification(ctx, "ref-1", models.PersonaProvider)
	require.NoError(t, err)

	session, err := orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.NoError(t, err)
	require.Equal(t, models.StateCompleted, session.State)
	require.Equal(t, "declined", session.ResultStatus())
	require.Equal(t, 1, client.fetchCalls)
}

func TestRunVerificationTimesOutAfterPollCeiling(t *testing.T) {
	client := &fakeProviderClient{
		provider: models.PersonaProvider,
		createId: "inq_1",
		statuses: []StatusResult{{RawStatus: "processing"}},
	}
	orchestrator, _ := newTestOrchestrator(client, 3)
	ctx := context.Background()

	_, err := orchestrator.StartVerification(ctx, "ref-1", models.PersonaProvider)
	require.NoError(t, err)

	session, err := orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.NoError(t, err)
	require.Equal(t, models.StateTimedOut, session.State)
	require.Equal(t, "processing", session.RawProviderStatus)
	require.Nil(t, session.NormalizedFields)
	require.Equal(t, 3, client.fetchCalls)
}

func TestRunVerificationCancelledLeavesSessionUnderReview(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeProviderClient{
		provider: models.PersonaProvider,
		createId: "inq_1",
		statuses: []StatusResult{{RawStatus: "processing"}},
		onFetch: func(call int) {
			cancel()
		},
	}
	orchestrator, _ := newTestOrchestrator(client, 10)

	_, err := orchestrator.StartVerification(context.Background(), "ref-1", models.PersonaProvider)
	require.NoError(t, err)

	session, err := orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.NoError(t, err)
	require.Equal(t, models.StateUnderReview, session.State)
	require.Nil(t, session.NormalizedFields)
}

func TestRunVerificationRejectsInvalidArtifacts(t *testing.T) {
	client := &fakeProviderClient{provider: models.PersonaProvider, createId: "inq_1"}
	orchestrator, _ := newTestOrchestrator(client, 3)
	ctx := context.Background()

	_, err := orchestrator.StartVerification(ctx, "ref-1", models.PersonaProvider)
	require.NoError(t, err)

	cases := map[string][]models.Artifact{
		"no artifacts": {},
		"missing selfie": {
			{Kind: models.FrontDocument, Bytes: []byte{1}},
		},
		"missing front": {
			{Kind: models.Selfie, Bytes: []byte{1}},
		},
		"two selfies": {
			{Kind: models.FrontDocument, Bytes: []byte{1}},
			{Kind: models.Selfie, Bytes: []byte{1}},
			{Kind: models.Selfie, Bytes: []byte{2}},
		},
		"empty payload": {
			{Kind: models.FrontDocument},
			{Kind: models.Selfie, Bytes: []byte{1}},
		},
		"unknown kind": {
			{Kind: models.ArtifactKind("hologram"), Bytes: []byte{1}},
			{Kind: models.FrontDocument, Bytes: []byte{1}},
			{Kind: models.Selfie, Bytes: []byte{1}},
		},
	}
	for name, artifacts := range cases {
		_, err := orchestrator.RunVerification(ctx, "inq_1", artifacts)
		require.ErrorIs(t, err, ErrInvalidArtifacts, name)
	}
}

func TestRunVerificationRejectsSecondRun(t *testing.T) {
	client := &fakeProviderClient{
		provider: models.PersonaProvider,
		createId: "inq_1",
		statuses: []StatusResult{{RawStatus: "completed", RawFields: mockPersonaFields}},
	}
	orchestrator, _ := newTestOrchestrator(client, 3)
	ctx := context.Background()

	_, err := orchestrator.StartVerification(ctx, "ref-1", models.PersonaProvider)
	require.NoError(t, err)
	_, err = orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.NoError(t, err)

	_, err = orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.ErrorIs(t, err, ErrSessionNotPending)
}

func TestRunVerificationUnknownSession(t *testing.T) {
	client := &fakeProviderClient{provider: models.PersonaProvider}
	orchestrator, _ := newTestOrchestrator(client, 3)

	_, err := orchestrator.RunVerification(context.Background(), "missing", validTestArtifacts())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRunVerificationToleratesResolveFailure(t *testing.T) {
	client := &fakeProviderClient{
		provider:   models.PersonaProvider,
		createId:   "inq_1",
		resolveErr: fmt.Errorf("listing unavailable"),
		statuses:   []StatusResult{{RawStatus: "completed", RawFields: mockPersonaFields}},
	}
	orchestrator, _ := newTestOrchestrator(client, 3)
	ctx := context.Background()

	_, err := orchestrator.StartVerification(ctx, "ref-1", models.PersonaProvider)
	require.NoError(t, err)

	session, err := orchestrator.RunVerification(ctx, "inq_1", validTestArtifacts())
	require.NoError(t, err)
	require.Equal(t, models.StateCompleted, session.State)
	// no handles resolved, so nothing was uploaded
	require.Empty(t, client.submitted)
}
