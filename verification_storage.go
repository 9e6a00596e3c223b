package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when no verification session exists for the
// given id.
var ErrSessionNotFound = errors.New("verification session not found")

// ErrArtifactsAlreadySubmitted is returned when artifacts are attached to a
// session that already carries some. Artifacts are immutable once submitted.
var ErrArtifactsAlreadySubmitted = errors.New("artifacts already submitted for session")

// VerificationStorage holds verification sessions keyed by session id.
// The orchestrator and the webhook receiver both write through
// AdvanceSession, which serializes writes per session and refuses
// backward state transitions, so a late poll response can never revert a
// result already delivered by webhook.
//
// Should be safe to use concurrently.
type VerificationStorage interface {
	// CreateSession stores a fresh session record.
	CreateSession(ctx context.Context, session *models.VerificationSession) error

	// GetSession retrieves the session or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionId string) (*models.VerificationSession, error)

	// AttachArtifacts records the submitted artifacts exactly once.
	AttachArtifacts(ctx context.Context, sessionId string, artifacts []models.Artifact) error

	// AdvanceSession moves the session to state, updating the raw status and,
	// when the transition completes the session, the normalized fields.
	// Writes that would move the state backward (or mutate a terminal
	// session) are dropped; the stored session is returned along with
	// whether the write was applied.
	AdvanceSession(ctx context.Context, sessionId string, state models.SessionState, rawStatus string, fields *models.CanonicalIdentityFields) (*models.VerificationSession, bool, error)
}

// applyAdvance implements the shared transition rules on a loaded session.
func applyAdvance(session *models.VerificationSession, state models.SessionState, rawStatus string, fields *models.CanonicalIdentityFields) bool {
	if session.State.IsTerminal() {
		return false
	}
	if models.StateRank(state) < models.StateRank(session.State) {
		return false
	}
	session.State = state
	if rawStatus != "" {
		session.RawProviderStatus = rawStatus
	}
	// normalized fields are set exactly once, on completion
	if state == models.StateCompleted && session.NormalizedFields == nil && fields != nil {
		session.NormalizedFields = fields
	}
	return true
}

// ------------------------------------------------------------------------------

type InMemoryVerificationStorage struct {
	sessions map[string]*models.VerificationSession
	mutex    sync.Mutex
}

func NewInMemoryVerificationStorage() *InMemoryVerificationStorage {
	return &InMemoryVerificationStorage{
		sessions: make(map[string]*models.VerificationSession),
	}
}

func (s *InMemoryVerificationStorage) CreateSession(_ context.Context, session *models.VerificationSession) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *session
	s.sessions[session.SessionId] = &copied
	return nil
}

func (s *InMemoryVerificationStorage) GetSession(_ context.Context, sessionId string) (*models.VerificationSession, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[sessionId]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *InMemoryVerificationStorage) AttachArtifacts(_ context.Context, sessionId string, artifacts []models.Artifact) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[sessionId]
	if !ok {
		return ErrSessionNotFound
	}
	if len(session.Artifacts) > 0 {
		return ErrArtifactsAlreadySubmitted
	}
	session.Artifacts = artifacts
	return nil
}

func (s *InMemoryVerificationStorage) AdvanceSession(_ context.Context, sessionId string, state models.SessionState, rawStatus string, fields *models.CanonicalIdentityFields) (*models.VerificationSession, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[sessionId]
	if !ok {
		return nil, false, ErrSessionNotFound
	}
	applied := applyAdvance(session, state, rawStatus, fields)
	copied := *session
	return &copied, applied, nil
}

// ------------------------------------------------------------------------------

type RedisVerificationStorage struct {
	client    *redis.Client
	namespace string
}

func NewRedisVerificationStorage(client *redis.Client, namespace string) *RedisVerificationStorage {
	return &RedisVerificationStorage{client: client, namespace: namespace}
}

const sessionTTL time.Duration = 24 * time.Hour

func (s *RedisVerificationStorage) sessionKey(sessionId string) string {
	return fmt.Sprintf("%s:verification:%s", s.namespace, sessionId)
}

func (s *RedisVerificationStorage) CreateSession(ctx context.Context, session *models.VerificationSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.client.Set(ctx, s.sessionKey(session.SessionId), payload, sessionTTL).Err()
}

func (s *RedisVerificationStorage) GetSession(ctx context.Context, sessionId string) (*models.VerificationSession, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(sessionId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session models.VerificationSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisVerificationStorage) AttachArtifacts(ctx context.Context, sessionId string, artifacts []models.Artifact) error {
	_, err := s.mutate(ctx, sessionId, func(session *models.VerificationSession) error {
		if len(session.Artifacts) > 0 {
			return ErrArtifactsAlreadySubmitted
		}
		session.Artifacts = artifacts
		return nil
	})
	return err
}

func (s *RedisVerificationStorage) AdvanceSession(ctx context.Context, sessionId string, state models.SessionState, rawStatus string, fields *models.CanonicalIdentityFields) (*models.VerificationSession, bool, error) {
	var applied bool
	session, err := s.mutate(ctx, sessionId, func(session *models.VerificationSession) error {
		applied = applyAdvance(session, state, rawStatus, fields)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return session, applied, nil
}

// mutate runs fn on the stored session inside a WATCH transaction so that
// concurrent writers to the same session id serialize.
func (s *RedisVerificationStorage) mutate(ctx context.Context, sessionId string, fn func(*models.VerificationSession) error) (*models.VerificationSession, error) {
	key := s.sessionKey(sessionId)
	var result *models.VerificationSession

	txn := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var session models.VerificationSession
		if err := json.Unmarshal(payload, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if err := fn(&session); err != nil {
			return err
		}

		updated, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, sessionTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = &session
		return nil
	}

	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("failed to update session %s after %d retries", sessionId, maxRetries)
}
