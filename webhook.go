package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/metrics"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"
)

// WebhookReceiver reconciles asynchronous provider callbacks with stored
// sessions. Delivery contract: the receiver always acknowledges, whatever
// the payload looks like, so the provider never retries because of us.
type WebhookReceiver struct {
	storage   VerificationStorage
	clients   map[models.Provider]ProviderClient
	collector *metrics.Collector
}

func NewWebhookReceiver(storage VerificationStorage, clients map[models.Provider]ProviderClient, collector *metrics.Collector) *WebhookReceiver {
	return &WebhookReceiver{storage: storage, clients: clients, collector: collector}
}

// webhookEvent is the provider-agnostic view of a callback.
type webhookEvent struct {
	EventType string
	SessionId string
	RawStatus string
	RawFields map[string]any
}

// Receive parses the provider payload and reconciles the subject session.
// Returns true unconditionally; spurious, duplicate or malformed events are
// tolerated and cause no retries.
func (r *WebhookReceiver) Receive(ctx context.Context, provider models.Provider, payload []byte) bool {
	r.collector.RecordWebhookEvent(string(provider))

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		slog.Warn("Malformed webhook payload, acknowledging anyway", "provider", provider, "error", err)
		return true
	}

	var event webhookEvent
	switch provider {
	case models.OnfidoProvider:
		event = parseOnfidoEvent(body)
	default:
		event = parsePersonaEvent(body)
	}

	slog.Info("Webhook received", "provider", provider, "event", event.EventType, "session_id", event.SessionId)

	if event.SessionId == "" {
		return true
	}

	session, err := r.storage.GetSession(ctx, event.SessionId)
	if errors.Is(err, ErrSessionNotFound) {
		slog.Debug("Webhook for unknown session, no reconciliation", "session_id", event.SessionId)
		return true
	}
	if err != nil {
		slog.Error("Failed to load session for webhook", "session_id", event.SessionId, "error", err)
		return true
	}
	if session.State.IsTerminal() || event.RawStatus == "" {
		return true
	}

	r.reconcile(ctx, session, event)
	return true
}

// reconcile applies the webhook status through the same terminal
// classification the poller uses, so push delivery and polling converge on
// one state machine.
func (r *WebhookReceiver) reconcile(ctx context.Context, session *models.VerificationSession, event webhookEvent) {
	client, ok := r.clients[session.Provider]
	if !ok {
		return
	}

	if !client.IsTerminalStatus(event.RawStatus) {
		// not terminal yet: record the observation, keep the state
		if _, _, err := r.storage.AdvanceSession(ctx, session.SessionId, session.State, event.RawStatus, nil); err != nil {
			slog.Error("Failed to record webhook status", "session_id", session.SessionId, "error", err)
		}
		return
	}

	fields := NormalizeFields(session.Provider, event.RawFields)
	_, applied, err := r.storage.AdvanceSession(ctx, session.SessionId, models.StateCompleted, event.RawStatus, &fields)
	if err != nil {
		slog.Error("Failed to reconcile webhook result", "session_id", session.SessionId, "error", err)
		return
	}
	if applied {
		r.collector.RecordVerificationFinished(string(session.Provider), string(models.StateCompleted))
		slog.Info("Session completed via webhook", "session_id", session.SessionId, "raw_status", event.RawStatus)
	}
}

// parsePersonaEvent digs through Persona's JSON:API event envelope. Every
// extraction is defensive: absent keys yield empty values, never a panic.
func parsePersonaEvent(body map[string]any) webhookEvent {
	event := webhookEvent{
		EventType: digString(body, "data", "attributes", "name"),
		SessionId: digString(body, "data", "relationships", "inquiry", "data", "id"),
		RawStatus: digString(body, "data", "attributes", "payload", "data", "attributes", "status"),
	}
	if event.SessionId == "" {
		event.SessionId = digString(body, "data", "attributes", "payload", "data", "id")
	}
	if event.RawStatus == "" {
		// "inquiry.completed" carries the status in its suffix
		if i := strings.LastIndex(event.EventType, "."); i >= 0 {
			event.RawStatus = event.EventType[i+1:]
		}
	}
	if fields, ok := dig(body, "data", "attributes", "payload", "data", "attributes", "fields").(map[string]any); ok {
		event.RawFields = fields
	}
	return event
}

// parseOnfidoEvent digs through Onfido's webhook envelope.
func parseOnfidoEvent(body map[string]any) webhookEvent {
	event := webhookEvent{
		EventType: digString(body, "payload", "action"),
		SessionId: digString(body, "payload", "object", "applicant_id"),
		RawStatus: digString(body, "payload", "object", "status"),
	}
	if event.SessionId == "" {
		event.SessionId = digString(body, "payload", "object", "id")
	}
	if result := digString(body, "payload", "object", "result"); event.RawStatus == "complete" && result != "" {
		event.RawStatus = result
	}
	return event
}

// dig walks nested maps and returns nil as soon as a key is missing.
func dig(body map[string]any, keys ...string) any {
	var current any = body
	for _, key := range keys {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = node[key]
	}
	return current
}

func digString(body map[string]any, keys ...string) string {
	value, _ := dig(body, keys...).(string)
	return value
}
