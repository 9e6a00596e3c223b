package main

import (
	"context"
	"testing"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/stretchr/testify/require"
)

func newStoredSession(t *testing.T, storage VerificationStorage, state models.SessionState) *models.VerificationSession {
	t.Helper()
	session := &models.VerificationSession{
		SessionId:   "inq_test_1",
		Provider:    models.PersonaProvider,
		ReferenceId: "ref-1",
		State:       state,
	}
	require.NoError(t, storage.CreateSession(context.Background(), session))
	return session
}

func TestInMemoryStorageCreateAndGet(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateCreated)

	loaded, err := storage.GetSession(context.Background(), "inq_test_1")
	require.NoError(t, err)
	require.Equal(t, "ref-1", loaded.ReferenceId)
	require.Equal(t, models.StateCreated, loaded.State)

	// the returned session is a copy, mutations must not leak back
	loaded.State = models.StateFailed
	again, err := storage.GetSession(context.Background(), "inq_test_1")
	require.NoError(t, err)
	require.Equal(t, models.StateCreated, again.State)
}

func TestInMemoryStorageGetUnknownSession(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	_, err := storage.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInMemoryStorageAttachArtifactsOnce(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateCreated)
	artifacts := []models.Artifact{{Kind: models.FrontDocument, Bytes: []byte{1}}}

	require.NoError(t, storage.AttachArtifacts(context.Background(), "inq_test_1", artifacts))
	err := storage.AttachArtifacts(context.Background(), "inq_test_1", artifacts)
	require.ErrorIs(t, err, ErrArtifactsAlreadySubmitted)

	err = storage.AttachArtifacts(context.Background(), "missing", artifacts)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdvanceSessionForward(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateCreated)
	ctx := context.Background()

	session, applied, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateArtifactsSubmitted, "", nil)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.StateArtifactsSubmitted, session.State)

	session, applied, err = storage.AdvanceSession(ctx, "inq_test_1", models.StateUnderReview, "processing", nil)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, "processing", session.RawProviderStatus)
}

func TestAdvanceSessionRefusesBackwardTransition(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateUnderReview)
	ctx := context.Background()

	session, applied, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateCreated, "", nil)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, models.StateUnderReview, session.State)
}

func TestAdvanceSessionRefusesTerminalMutation(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateUnderReview)
	ctx := context.Background()

	fields := models.CanonicalIdentityFields{FullName: "Webhook Result"}
	_, applied, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateCompleted, "approved", &fields)
	require.NoError(t, err)
	require.True(t, applied)

	// a late poller result must not overwrite the webhook's verdict
	session, applied, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateTimedOut, "processing", nil)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, models.StateCompleted, session.State)
	require.Equal(t, "approved", session.RawProviderStatus)
	require.Equal(t, "Webhook Result", session.NormalizedFields.FullName)
}

func TestAdvanceSessionSetsFieldsOnce(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateUnderReview)
	ctx := context.Background()

	first := models.CanonicalIdentityFields{FullName: "First"}
	session, applied, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateCompleted, "completed", &first)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, "First", session.NormalizedFields.FullName)
}

func TestAdvanceSessionKeepsRawStatusWhenEmpty(t *testing.T) {
	storage := NewInMemoryVerificationStorage()
	newStoredSession(t, storage, models.StateCreated)
	ctx := context.Background()

	_, _, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateArtifactsSubmitted, "pending", nil)
	require.NoError(t, err)

	session, applied, err := storage.AdvanceSession(ctx, "inq_test_1", models.StateUnderReview, "", nil)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, "pending", session.RawProviderStatus)
}

func TestApplyAdvanceSameStateRecordsStatus(t *testing.T) {
	session := &models.VerificationSession{State: models.StateUnderReview}
	applied := applyAdvance(session, models.StateUnderReview, "needs_attention", nil)
	require.True(t, applied)
	require.Equal(t, models.StateUnderReview, session.State)
	require.Equal(t, "needs_attention", session.RawProviderStatus)
}
