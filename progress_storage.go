package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/redis/go-redis/v9"
)

// ProgressStorage holds the onboarding progress document and the profile
// sections saved during onboarding, keyed by user id.
//
// Should be safe to use concurrently.
type ProgressStorage interface {
	// GetProgress returns the stored progress, or a fresh document when the
	// user has none yet.
	GetProgress(ctx context.Context, userId string) (*models.OnboardingProgress, error)

	SaveProgress(ctx context.Context, userId string, progress *models.OnboardingProgress) error

	GetSections(ctx context.Context, userId string) (*models.ProfileSections, error)

	SaveSections(ctx context.Context, userId string, sections *models.ProfileSections) error
}

func newProgress() *models.OnboardingProgress {
	return &models.OnboardingProgress{
		CompletedSteps: []string{},
		CurrentStep:    models.StepPersonalInfo,
	}
}

// ------------------------------------------------------------------------------

type InMemoryProgressStorage struct {
	progress map[string]*models.OnboardingProgress
	sections map[string]*models.ProfileSections
	mutex    sync.Mutex
}

func NewInMemoryProgressStorage() *InMemoryProgressStorage {
	return &InMemoryProgressStorage{
		progress: make(map[string]*models.OnboardingProgress),
		sections: make(map[string]*models.ProfileSections),
	}
}

func (s *InMemoryProgressStorage) GetProgress(_ context.Context, userId string) (*models.OnboardingProgress, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if progress, ok := s.progress[userId]; ok {
		copied := *progress
		return &copied, nil
	}
	return newProgress(), nil
}

func (s *InMemoryProgressStorage) SaveProgress(_ context.Context, userId string, progress *models.OnboardingProgress) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *progress
	s.progress[userId] = &copied
	return nil
}

func (s *InMemoryProgressStorage) GetSections(_ context.Context, userId string) (*models.ProfileSections, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if sections, ok := s.sections[userId]; ok {
		copied := *sections
		return &copied, nil
	}
	return &models.ProfileSections{}, nil
}

func (s *InMemoryProgressStorage) SaveSections(_ context.Context, userId string, sections *models.ProfileSections) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *sections
	s.sections[userId] = &copied
	return nil
}

// ------------------------------------------------------------------------------

type RedisProgressStorage struct {
	client    *redis.Client
	namespace string
}

func NewRedisProgressStorage(client *redis.Client, namespace string) *RedisProgressStorage {
	return &RedisProgressStorage{client: client, namespace: namespace}
}

func (s *RedisProgressStorage) progressKey(userId string) string {
	return fmt.Sprintf("%s:progress:%s", s.namespace, userId)
}

func (s *RedisProgressStorage) sectionsKey(userId string) string {
	return fmt.Sprintf("%s:sections:%s", s.namespace, userId)
}

func (s *RedisProgressStorage) GetProgress(ctx context.Context, userId string) (*models.OnboardingProgress, error) {
	payload, err := s.client.Get(ctx, s.progressKey(userId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newProgress(), nil
	}
	if err != nil {
		return nil, err
	}

	var progress models.OnboardingProgress
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &progress, nil
}

func (s *RedisProgressStorage) SaveProgress(ctx context.Context, userId string, progress *models.OnboardingProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return s.client.Set(ctx, s.progressKey(userId), payload, sessionTTL).Err()
}

func (s *RedisProgressStorage) GetSections(ctx context.Context, userId string) (*models.ProfileSections, error) {
	payload, err := s.client.Get(ctx, s.sectionsKey(userId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &models.ProfileSections{}, nil
	}
	if err != nil {
		return nil, err
	}

	var sections models.ProfileSections
	if err := json.Unmarshal(payload, &sections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
	}
	return &sections, nil
}

func (s *RedisProgressStorage) SaveSections(ctx context.Context, userId string, sections *models.ProfileSections) error {
	payload, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}
	return s.client.Set(ctx, s.sectionsKey(userId), payload, sessionTTL).Err()
}
