package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/google/uuid"
)

const PersonaDefaultBaseURL = "https://withpersona.com/api/v1"
const personaAPIVersion = "2023-01-05"

// personaTerminalStatuses is the set of inquiry statuses after which no
// further change is expected.
var personaTerminalStatuses = map[string]bool{
	"completed":    true,
	"approved":     true,
	"declined":     true,
	"failed":       true,
	"needs_review": true,
	"expired":      true,
}

// PersonaClient talks to the Persona REST API. Binary artifacts travel as
// data-URI base64 strings embedded in JSON, per Persona's upload style.
// With no API key the client runs in mock mode.
type PersonaClient struct {
	apiKey     string
	templateId string
	baseURL    string
	httpClient *http.Client
}

func NewPersonaClient(apiKey, templateId, baseURL string) *PersonaClient {
	if baseURL == "" {
		baseURL = PersonaDefaultBaseURL
	}
	return &PersonaClient{
		apiKey:     apiKey,
		templateId: templateId,
		baseURL:    baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *PersonaClient) Provider() models.Provider {
	return models.PersonaProvider
}

func (c *PersonaClient) IsTerminalStatus(status string) bool {
	return personaTerminalStatuses[status]
}

func (c *PersonaClient) mockMode() bool {
	return c.apiKey == ""
}

// personaInquiryEnvelope is the JSON:API envelope wrapping inquiry
// resources. Decoded once here; downstream code never sees raw payloads.
type personaInquiryEnvelope struct {
	Data personaResource `json:"data"`
}

type personaListEnvelope struct {
	Data []personaResource `json:"data"`
}

type personaResource struct {
	Id         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Status string         `json:"status"`
		Fields map[string]any `json:"fields"`
	} `json:"attributes"`
}

func (c *PersonaClient) CreateSession(ctx context.Context, referenceId string) (string, error) {
	if c.mockMode() {
		slog.Debug("Persona client in mock mode, returning canned inquiry", "reference_id", referenceId)
		return "inq_mock_" + uuid.NewString(), nil
	}

	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"inquiry-template-id": c.templateId,
				"reference-id":        referenceId,
			},
		},
	}

	var envelope personaInquiryEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/inquiries", body, &envelope); err != nil {
		return "", fmt.Errorf("failed to create inquiry: %w", err)
	}
	if envelope.Data.Id == "" {
		return "", fmt.Errorf("inquiry creation returned no id")
	}

	slog.Info("Persona inquiry created", "inquiry_id", envelope.Data.Id, "reference_id", referenceId)
	return envelope.Data.Id, nil
}

func (c *PersonaClient) ResolveSubResources(ctx context.Context, sessionId string) (map[models.ArtifactKind]string, error) {
	if c.mockMode() {
		return map[models.ArtifactKind]string{
			models.FrontDocument: "ver_doc_mock",
			models.BackDocument:  "ver_doc_mock",
			models.Selfie:        "ver_selfie_mock",
		}, nil
	}

	var envelope personaListEnvelope
	path := fmt.Sprintf("/inquiries/%s/verifications", sessionId)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}

	// The government-id verification receives both document sides; the
	// selfie verification receives the biometric capture.
	resources := make(map[models.ArtifactKind]string)
	for _, resource := range envelope.Data {
		switch resource.Type {
		case "verification/government-id":
			resources[models.FrontDocument] = resource.Id
			resources[models.BackDocument] = resource.Id
		case "verification/selfie":
			resources[models.Selfie] = resource.Id
		}
	}

	slog.Debug("Persona verifications resolved", "inquiry_id", sessionId, "count", len(envelope.Data))
	return resources, nil
}

// personaPhotoAttribute maps an artifact kind onto the verification photo
// slot it fills.
func personaPhotoAttribute(kind models.ArtifactKind) string {
	switch kind {
	case models.BackDocument:
		return "back-photo"
	case models.Selfie:
		return "center-photo"
	default:
		return "front-photo"
	}
}

func (c *PersonaClient) SubmitArtifact(ctx context.Context, sessionId, subResource string, artifact models.Artifact) error {
	if err := checkArtifact(&artifact); err != nil {
		return err
	}
	if c.mockMode() {
		slog.Debug("Persona client in mock mode, skipping artifact upload", "kind", artifact.Kind)
		return nil
	}

	// Self-describing payload: content type + base64 data in one string.
	dataURI := fmt.Sprintf("data:%s;base64,%s", artifact.ContentType, base64.StdEncoding.EncodeToString(artifact.Bytes))
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				personaPhotoAttribute(artifact.Kind): map[string]any{
					"data": dataURI,
				},
			},
		},
	}

	path := fmt.Sprintf("/verifications/%s", subResource)
	if err := c.doJSON(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("failed to upload %s: %w", artifact.Kind, err)
	}

	slog.Debug("Persona artifact uploaded", "inquiry_id", sessionId, "verification_id", subResource, "kind", artifact.Kind)
	return nil
}

func (c *PersonaClient) SubmitForReview(ctx context.Context, sessionId string) error {
	if c.mockMode() {
		return nil
	}

	path := fmt.Sprintf("/inquiries/%s/submit", sessionId)
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{}, nil); err != nil {
		return fmt.Errorf("failed to submit inquiry: %w", err)
	}

	slog.Info("Persona inquiry submitted for review", "inquiry_id", sessionId)
	return nil
}

func (c *PersonaClient) FetchStatus(ctx context.Context, sessionId string) (StatusResult, error) {
	if c.mockMode() {
		return StatusResult{RawStatus: "completed", RawFields: mockPersonaFields}, nil
	}

	var envelope personaInquiryEnvelope
	path := fmt.Sprintf("/inquiries/%s", sessionId)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return StatusResult{}, fmt.Errorf("failed to fetch inquiry: %w", err)
	}

	return StatusResult{
		RawStatus: envelope.Data.Attributes.Status,
		RawFields: envelope.Data.Attributes.Fields,
	}, nil
}

// doJSON issues an authenticated JSON request and decodes the response into
// out when given.
func (c *PersonaClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Persona-Version", personaAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
