package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/metrics"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"
)

// Defaults for the poll policy; overridable through the config.
const DefaultPollInterval = 2 * time.Second
const DefaultPollAttempts uint = 15

// Error taxonomy of the orchestration flow. Only ErrSessionCreationFailed is
// fatal to a verification attempt; everything else degrades the result's
// completeness, not its availability.
var ErrSessionCreationFailed = errors.New("session creation failed")
var ErrUnknownProvider = errors.New("unknown verification provider")
var ErrInvalidArtifacts = errors.New("invalid artifact set")
var ErrSessionNotPending = errors.New("session already past artifact submission")

// Orchestrator drives a verification session through
// Created -> ArtifactsSubmitted -> UnderReview -> Completed/Failed/TimedOut.
// One orchestration run owns its session until it parks it in UnderReview;
// from there the poller and the webhook receiver converge through the
// storage's monotonic writes.
type Orchestrator struct {
	storage      VerificationStorage
	clients      map[models.Provider]ProviderClient
	pollInterval time.Duration
	pollAttempts uint
	collector    *metrics.Collector
}

func NewOrchestrator(storage VerificationStorage, clients map[models.Provider]ProviderClient, pollInterval time.Duration, pollAttempts uint, collector *metrics.Collector) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if pollAttempts == 0 {
		pollAttempts = DefaultPollAttempts
	}
	return &Orchestrator{
		storage:      storage,
		clients:      clients,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		collector:    collector,
	}
}

func (o *Orchestrator) client(provider models.Provider) (ProviderClient, error) {
	client, ok := o.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return client, nil
}

// StartVerification creates the remote session and the local record.
// Creation failure is the one fatal error of the flow: the provider's
// diagnostic payload is carried in the returned error.
func (o *Orchestrator) StartVerification(ctx context.Context, referenceId string, provider models.Provider) (*models.VerificationSession, error) {
	client, err := o.client(provider)
	if err != nil {
		return nil, err
	}

	slog.Info("Creating verification session", "provider", provider, "reference_id", referenceId)
	sessionId, err := client.CreateSession(ctx, referenceId)
	if err != nil {
		o.collector.RecordVerificationFinished(string(provider), string(models.StateFailed))
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	if sessionId == "" {
		o.collector.RecordVerificationFinished(string(provider), string(models.StateFailed))
		return nil, fmt.Errorf("%w: provider returned no session id", ErrSessionCreationFailed)
	}

	session := &models.VerificationSession{
		SessionId:   sessionId,
		Provider:    provider,
		ReferenceId: referenceId,
		State:       models.StateCreated,
	}
	if err := o.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	o.collector.RecordVerificationStarted(string(provider))
	slog.Info("Verification session created", "session_id", sessionId, "provider", provider)
	return session, nil
}

// validateArtifacts enforces the entry invariant: at least one front
// document and exactly one selfie before the session may leave Created.
func validateArtifacts(artifacts []models.Artifact) error {
	var fronts, selfies int
	for _, artifact := range artifacts {
		switch artifact.Kind {
		case models.FrontDocument:
			fronts++
		case models.Selfie:
			selfies++
		case models.BackDocument:
		default:
			return fmt.Errorf("%w: unknown artifact kind %q", ErrInvalidArtifacts, artifact.Kind)
		}
		if len(artifact.Bytes) == 0 {
			return fmt.Errorf("%w: artifact %s has no payload", ErrInvalidArtifacts, artifact.Kind)
		}
	}
	if fronts < 1 {
		return fmt.Errorf("%w: at least one front document is required", ErrInvalidArtifacts)
	}
	if selfies != 1 {
		return fmt.Errorf("%w: exactly one selfie is required, got %d", ErrInvalidArtifacts, selfies)
	}
	return nil
}

// RunVerification submits the artifacts, hands the session over for review
// and polls until a terminal status or the poll ceiling. It blocks its
// caller for the duration of the attempt; unrelated attempts are unaffected.
//
// Transport failures between submission steps are best effort: the provider
// may still process a partially submitted session, so the flow proceeds and
// only logs.
func (o *Orchestrator) RunVerification(ctx context.Context, sessionId string, artifacts []models.Artifact) (*models.VerificationSession, error) {
	session, err := o.storage.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.State != models.StateCreated {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotPending, sessionId, session.State)
	}
	if err := validateArtifacts(artifacts); err != nil {
		return nil, err
	}
	client, err := o.client(session.Provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		o.collector.RecordOrchestrationDuration(time.Since(start))
	}()

	// Resolve the per-kind submission handles. Missing handles are
	// tolerated; the matching artifact is skipped, not treated as fatal.
	resources, err := client.ResolveSubResources(ctx, sessionId)
	if err != nil {
		slog.Warn("Failed to resolve verification sub-resources", "session_id", sessionId, "error", err)
		resources = nil
	}

	if err := o.storage.AttachArtifacts(ctx, sessionId, artifacts); err != nil {
		return nil, err
	}

	// Artifact submissions are independent sub-resources and fan out
	// concurrently. Every submission must have finished, successfully or
	// not, before the review submission goes out.
	g, gctx := errgroup.WithContext(ctx)
	for _, artifact := range artifacts {
		artifact := artifact
		handle, ok := resources[artifact.Kind]
		if !ok {
			slog.Warn("No sub-resource for artifact, skipping submission", "session_id", sessionId, "kind", artifact.Kind)
			continue
		}
		g.Go(func() error {
			if err := client.SubmitArtifact(gctx, sessionId, handle, artifact); err != nil {
				slog.Warn("Artifact submission failed", "session_id", sessionId, "kind", artifact.Kind, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if _, _, err := o.storage.AdvanceSession(ctx, sessionId, models.StateArtifactsSubmitted, "", nil); err != nil {
		return nil, err
	}

	if err := client.SubmitForReview(ctx, sessionId); err != nil {
		// non-fatal: the provider may process the session regardless
		slog.Warn("Review submission failed, proceeding to polling", "session_id", sessionId, "error", err)
	}

	if _, _, err := o.storage.AdvanceSession(ctx, sessionId, models.StateUnderReview, "", nil); err != nil {
		return nil, err
	}

	return o.poll(ctx, client, sessionId)
}

// poll fetches the provider status on a fixed interval until it turns
// terminal or the attempt ceiling is reached.
func (o *Orchestrator) poll(ctx context.Context, client ProviderClient, sessionId string) (*models.VerificationSession, error) {
	provider := client.Provider()
	var last StatusResult
	attempts := 0

	err := retry.Do(
		func() error {
			attempts++
			status, err := client.FetchStatus(ctx, sessionId)
			if err != nil {
				return err
			}
			last = status
			if !client.IsTerminalStatus(status.RawStatus) {
				return fmt.Errorf("status %q is not terminal", status.RawStatus)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.pollAttempts),
		retry.Delay(o.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Waiting for terminal verification status", "session_id", sessionId, "attempt", n+1, "error", err)
		}),
	)
	o.collector.RecordPollAttempts(attempts)

	if err != nil {
		if ctx.Err() != nil {
			// caller went away: leave the session under review for a
			// webhook or a fresh poll to reconcile later
			slog.Info("Polling interrupted, session stays under review", "session_id", sessionId)
			return o.storage.GetSession(context.WithoutCancel(ctx), sessionId)
		}

		slog.Warn("Poll budget exhausted", "session_id", sessionId, "attempts", attempts, "last_status", last.RawStatus)
		session, applied, err := o.storage.AdvanceSession(ctx, sessionId, models.StateTimedOut, last.RawStatus, nil)
		if err != nil {
			return nil, err
		}
		if applied {
			o.collector.RecordVerificationFinished(string(provider), string(models.StateTimedOut))
		}
		return session, nil
	}

	fields := NormalizeFields(provider, last.RawFields)
	session, applied, err := o.storage.AdvanceSession(ctx, sessionId, models.StateCompleted, last.RawStatus, &fields)
	if err != nil {
		return nil, err
	}
	if applied {
		o.collector.RecordVerificationFinished(string(provider), string(models.StateCompleted))
	}

	slog.Info("Verification completed", "session_id", sessionId, "raw_status", session.RawProviderStatus)
	return session, nil
}
