package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/google/uuid"
)

const OnfidoDefaultBaseURL = "https://api.eu.onfido.com/v3.6"

// onfidoTerminalStatuses covers both check statuses and check results,
// since a completed check surfaces its result as the raw status.
var onfidoTerminalStatuses = map[string]bool{
	"complete":  true,
	"clear":     true,
	"consider":  true,
	"withdrawn": true,
	"rejected":  true,
}

// OnfidoClient talks to the Onfido REST API. Binary artifacts travel as
// multipart direct uploads, unlike Persona's base64-in-JSON style; the
// ProviderClient interface hides the difference. With no API token the
// client runs in mock mode.
type OnfidoClient struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

func NewOnfidoClient(apiToken, baseURL string) *OnfidoClient {
	if baseURL == "" {
		baseURL = OnfidoDefaultBaseURL
	}
	return &OnfidoClient{
		apiToken:   apiToken,
		baseURL:    baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *OnfidoClient) Provider() models.Provider {
	return models.OnfidoProvider
}

func (c *OnfidoClient) IsTerminalStatus(status string) bool {
	return onfidoTerminalStatuses[status]
}

func (c *OnfidoClient) mockMode() bool {
	return c.apiToken == ""
}

type onfidoApplicant struct {
	Id string `json:"id"`
}

type onfidoCheck struct {
	Id     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result"`
}

type onfidoCheckList struct {
	Checks []onfidoCheck `json:"checks"`
}

type onfidoReport struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

type onfidoReportList struct {
	Reports []onfidoReport `json:"reports"`
}

func (c *OnfidoClient) CreateSession(ctx context.Context, referenceId string) (string, error) {
	if c.mockMode() {
		slog.Debug("Onfido client in mock mode, returning canned applicant", "reference_id", referenceId)
		return "apl_mock_" + uuid.NewString(), nil
	}

	// Placeholder names; the document report supplies the real identity.
	body := map[string]any{
		"first_name":  "Not",
		"last_name":   "Provided",
		"external_id": referenceId,
	}

	var applicant onfidoApplicant
	if err := c.doJSON(ctx, http.MethodPost, "/applicants", body, &applicant); err != nil {
		return "", fmt.Errorf("failed to create applicant: %w", err)
	}
	if applicant.Id == "" {
		return "", fmt.Errorf("applicant creation returned no id")
	}

	slog.Info("Onfido applicant created", "applicant_id", applicant.Id, "reference_id", referenceId)
	return applicant.Id, nil
}

// ResolveSubResources: Onfido uploads are applicant-scoped, so every kind
// resolves to the applicant itself; no follow-up listing call is needed.
func (c *OnfidoClient) ResolveSubResources(_ context.Context, sessionId string) (map[models.ArtifactKind]string, error) {
	return map[models.ArtifactKind]string{
		models.FrontDocument: sessionId,
		models.BackDocument:  sessionId,
		models.Selfie:        sessionId,
	}, nil
}

func (c *OnfidoClient) SubmitArtifact(ctx context.Context, sessionId, subResource string, artifact models.Artifact) error {
	if err := checkArtifact(&artifact); err != nil {
		return err
	}
	if c.mockMode() {
		slog.Debug("Onfido client in mock mode, skipping artifact upload", "kind", artifact.Kind)
		return nil
	}

	fields := map[string]string{"applicant_id": subResource}
	path := "/live_photos"
	if artifact.Kind != models.Selfie {
		path = "/documents"
		fields["type"] = "unknown"
		fields["side"] = "front"
		if artifact.Kind == models.BackDocument {
			fields["side"] = "back"
		}
	}

	if err := c.doMultipart(ctx, path, fields, artifact); err != nil {
		return fmt.Errorf("failed to upload %s: %w", artifact.Kind, err)
	}

	slog.Debug("Onfido artifact uploaded", "applicant_id", subResource, "kind", artifact.Kind)
	return nil
}

func (c *OnfidoClient) SubmitForReview(ctx context.Context, sessionId string) error {
	if c.mockMode() {
		return nil
	}

	body := map[string]any{
		"applicant_id": sessionId,
		"report_names": []string{"document", "facial_similarity_photo"},
	}

	var check onfidoCheck
	if err := c.doJSON(ctx, http.MethodPost, "/checks", body, &check); err != nil {
		return fmt.Errorf("failed to create check: %w", err)
	}

	slog.Info("Onfido check created", "applicant_id", sessionId, "check_id", check.Id)
	return nil
}

func (c *OnfidoClient) FetchStatus(ctx context.Context, sessionId string) (StatusResult, error) {
	if c.mockMode() {
		return StatusResult{RawStatus: "complete", RawFields: mockOnfidoFields}, nil
	}

	var list onfidoCheckList
	path := "/checks?applicant_id=" + url.QueryEscape(sessionId)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return StatusResult{}, fmt.Errorf("failed to list checks: %w", err)
	}
	if len(list.Checks) == 0 {
		return StatusResult{RawStatus: "pending"}, nil
	}

	// Checks are returned newest first; the latest one is this attempt's.
	check := list.Checks[0]
	rawStatus := check.Status
	if check.Status == "complete" && check.Result != "" {
		rawStatus = check.Result
	}

	result := StatusResult{RawStatus: rawStatus}
	if check.Status == "complete" {
		fields, err := c.fetchDocumentFields(ctx, check.Id)
		if err != nil {
			slog.Warn("Failed to fetch document report fields", "check_id", check.Id, "error", err)
		} else {
			result.RawFields = fields
		}
	}
	return result, nil
}

// fetchDocumentFields reads the extracted identity properties off the
// check's document report.
func (c *OnfidoClient) fetchDocumentFields(ctx context.Context, checkId string) (map[string]any, error) {
	var list onfidoReportList
	path := "/reports?check_id=" + url.QueryEscape(checkId)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	for _, report := range list.Reports {
		if report.Name == "document" {
			return report.Properties, nil
		}
	}
	return nil, fmt.Errorf("check %s has no document report", checkId)
}

func (c *OnfidoClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.execute(req, out)
}

func (c *OnfidoClient) doMultipart(ctx context.Context, path string, fields map[string]string, artifact models.Artifact) error {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write multipart field: %w", err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s.jpg"`, artifact.Kind))
	header.Set("Content-Type", artifact.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := part.Write(artifact.Bytes); err != nil {
		return fmt.Errorf("failed to write artifact bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buffer)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.execute(req, nil)
}

func (c *OnfidoClient) execute(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Token token="+c.apiToken)

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
