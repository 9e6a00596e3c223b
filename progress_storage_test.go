package main

import (
	"context"
	"testing"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/stretchr/testify/require"
)

func TestInMemoryProgressDefaultsForUnknownUser(t *testing.T) {
	storage := NewInMemoryProgressStorage()

	progress, err := storage.GetProgress(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, progress.CompletedSteps)
	require.Equal(t, models.StepPersonalInfo, progress.CurrentStep)
	require.Zero(t, progress.PercentDone)
}

func TestInMemoryProgressSaveAndGet(t *testing.T) {
	storage := NewInMemoryProgressStorage()
	ctx := context.Background()

	progress, err := storage.GetProgress(ctx, "usr_001")
	require.NoError(t, err)
	progress.MarkCompleted(models.StepPersonalInfo)
	require.NoError(t, storage.SaveProgress(ctx, "usr_001", progress))

	loaded, err := storage.GetProgress(ctx, "usr_001")
	require.NoError(t, err)
	require.Equal(t, []string{models.StepPersonalInfo}, loaded.CompletedSteps)
	require.Equal(t, 25, loaded.PercentDone)

	// stored copies are isolated from later caller mutations
	loaded.MarkCompleted(models.StepEducation)
	again, err := storage.GetProgress(ctx, "usr_001")
	require.NoError(t, err)
	require.Equal(t, 25, again.PercentDone)
}

func TestInMemorySectionsSaveAndGet(t *testing.T) {
	storage := NewInMemoryProgressStorage()
	ctx := context.Background()

	sections, err := storage.GetSections(ctx, "usr_001")
	require.NoError(t, err)
	require.Nil(t, sections.PersonalInfo)

	sections.PersonalInfo = &models.PersonalInfoRequest{Email: "a@example.com", Phone: "555"}
	require.NoError(t, storage.SaveSections(ctx, "usr_001", sections))

	sections.Education = &models.EducationRequest{Level: "bachelors"}
	require.NoError(t, storage.SaveSections(ctx, "usr_001", sections))

	loaded, err := storage.GetSections(ctx, "usr_001")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", loaded.PersonalInfo.Email)
	require.Equal(t, "bachelors", loaded.Education.Level)
	require.Nil(t, loaded.Employment)
}
