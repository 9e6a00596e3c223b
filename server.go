package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/metrics"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_DECODE_BODY = "failed to decode request body"
const ERR_SESSION_LOOKUP = "failed to look up verification session"
const ERR_PROGRESS_LOOKUP = "failed to load onboarding progress"
const ERR_TOKEN_CREATION = "failed to create access token"
const ERR_VERIFICATION_START = "failed to start verification"
const ERR_VERIFICATION_RUN = "failed to run verification"

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	UseTls         bool     `json:"use_tls,omitempty"`
	TlsPrivKeyPath string   `json:"tls_priv_key_path,omitempty"`
	TlsCertPath    string   `json:"tls_cert_path,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type ServerState struct {
	verifications VerificationStorage
	progress      ProgressStorage
	orchestrator  *Orchestrator
	webhooks      *WebhookReceiver
	tokenCreator  AccessTokenCreator
	collector     *metrics.Collector
}

type Server struct {
	server *http.Server
	config ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	} else {
		slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServe()
	}
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

func NewServer(state *ServerState, config ServerConfig) (*Server, error) {
	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	})
	if state.collector != nil {
		router.Handle("/metrics", state.collector.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		handleLogin(state, w, r)
	})
	router.HandleFunc("/api/auth/mfa", func(w http.ResponseWriter, r *http.Request) {
		handleMfa(state, w, r)
	})
	router.HandleFunc("/api/user/profile", func(w http.ResponseWriter, r *http.Request) {
		handleProfile(state, w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/onboarding/progress", func(w http.ResponseWriter, r *http.Request) {
		handleProgress(state, w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/onboarding/personal-info", func(w http.ResponseWriter, r *http.Request) {
		handleSavePersonalInfo(state, w, r)
	})
	router.HandleFunc("/api/onboarding/education", func(w http.ResponseWriter, r *http.Request) {
		handleSaveEducation(state, w, r)
	})
	router.HandleFunc("/api/onboarding/employment", func(w http.ResponseWriter, r *http.Request) {
		handleSaveEmployment(state, w, r)
	})
	router.HandleFunc("/api/onboarding/id-scan", func(w http.ResponseWriter, r *http.Request) {
		handleIdScan(state, w, r)
	})
	router.HandleFunc("/api/onboarding/liveness", func(w http.ResponseWriter, r *http.Request) {
		handleLiveness(state, w, r)
	})

	router.HandleFunc("/api/kyc/verifications", func(w http.ResponseWriter, r *http.Request) {
		handleCreateVerification(state, w, r)
	})
	router.HandleFunc("/api/kyc/verifications/{sessionId}/artifacts", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitArtifacts(state, w, r)
	})
	router.HandleFunc("/api/kyc/verifications/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		handleVerificationResult(state, w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/kyc/persona/webhook", func(w http.ResponseWriter, r *http.Request) {
		handleWebhook(state, models.PersonaProvider, w, r)
	})
	router.HandleFunc("/api/kyc/onfido/webhook", func(w http.ResponseWriter, r *http.Request) {
		handleWebhook(state, models.OnfidoProvider, w, r)
	})

	slog.Debug("Registered all API routes")

	allowedOrigins := config.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	srv := &http.Server{
		Handler: corsMiddleware.Handler(router),
		Addr:    addr,
		// Good practice: enforce timeouts for servers you create!
		// The artifact endpoint blocks while polling, so the write timeout
		// must cover the full poll ceiling.
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: config,
	}, nil
}

// ---- auth & profile ---------------------------------------------------------

func handleLogin(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	slog.Info("Login request received", "username", request.Username)

	response := models.LoginResponse{
		SessionToken: mockSessionToken,
		MfaRequired:  true,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleMfa(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.MfaRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}
	if request.Code == "" {
		respondWithErr(w, http.StatusBadRequest, "invalid request", "mfa code is required", nil)
		return
	}

	token, err := state.tokenCreator.CreateAccessToken(mockUser)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_TOKEN_CREATION, err)
		return
	}

	slog.Info("MFA challenge passed", "username", mockUser.Username)

	response := models.MfaResponse{
		AccessToken: token,
		User:        mockUser,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleProfile(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	progress, err := state.progress.GetProgress(r.Context(), mockUser.Id)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_PROGRESS_LOOKUP, err)
		return
	}

	profileStatus := "incomplete"
	if progress.PercentDone >= 100 {
		profileStatus = "complete"
	}

	response := struct {
		models.UserProfile
		ProfileStatus      string                     `json:"profile_status"`
		OnboardingProgress *models.OnboardingProgress `json:"onboarding_progress"`
	}{
		UserProfile:        mockUser,
		ProfileStatus:      profileStatus,
		OnboardingProgress: progress,
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleProgress(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	progress, err := state.progress.GetProgress(r.Context(), mockUser.Id)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_PROGRESS_LOOKUP, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, progress); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// ---- onboarding sections ----------------------------------------------------

// saveSection persists one profile section and advances the progress
// document. The backend serves a single mock user, so sections are stored
// under its id.
func saveSection(state *ServerState, w http.ResponseWriter, r *http.Request, step string, apply func(*models.ProfileSections), message string) {
	ctx := r.Context()

	sections, err := state.progress.GetSections(ctx, mockUser.Id)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_PROGRESS_LOOKUP, err)
		return
	}
	apply(sections)
	if err := state.progress.SaveSections(ctx, mockUser.Id, sections); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to save profile section", err)
		return
	}

	progress, err := state.progress.GetProgress(ctx, mockUser.Id)
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_PROGRESS_LOOKUP, err)
		return
	}
	progress.MarkCompleted(step)
	if err := state.progress.SaveProgress(ctx, mockUser.Id, progress); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to save progress", err)
		return
	}

	slog.Info("Onboarding section saved", "step", step)

	if err := writeJSON(w, http.StatusOK, models.SavedResponse{Saved: true, Message: message}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleSavePersonalInfo(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.PersonalInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	saveSection(state, w, r, models.StepPersonalInfo, func(s *models.ProfileSections) {
		s.PersonalInfo = &request
	}, "Personal information saved")
}

func handleSaveEducation(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.EducationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	saveSection(state, w, r, models.StepEducation, func(s *models.ProfileSections) {
		s.Education = &request
	}, "Education saved")
}

func handleSaveEmployment(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.EmploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	saveSection(state, w, r, models.StepEmployment, func(s *models.ProfileSections) {
		s.Employment = &request
	}, "Employment saved")
}

func handleIdScan(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	if err := writeJSON(w, http.StatusOK, mockIdScan); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleLiveness(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	if err := writeJSON(w, http.StatusOK, models.LivenessResponse{Passed: true}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// ---- verification -----------------------------------------------------------

func handleCreateVerification(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.CreateVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}
	if request.ReferenceId == "" {
		respondWithErr(w, http.StatusBadRequest, "invalid request", "reference_id is required", nil)
		return
	}

	provider := models.PersonaProvider
	if request.Provider != "" {
		parsed, ok := models.ParseProvider(request.Provider)
		if !ok {
			respondWithErr(w, http.StatusBadRequest, "invalid request", fmt.Sprintf("unknown provider %q", request.Provider), nil)
			return
		}
		provider = parsed
	}

	session, err := state.orchestrator.StartVerification(r.Context(), request.ReferenceId, provider)
	if errors.Is(err, ErrSessionCreationFailed) {
		respondWithErr(w, http.StatusBadGateway, err.Error(), ERR_VERIFICATION_START, err)
		return
	}
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_VERIFICATION_START, err)
		return
	}

	response := models.CreateVerificationResponse{
		SessionId: session.SessionId,
		Provider:  string(session.Provider),
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleSubmitArtifacts(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	sessionId := mux.Vars(r)["sessionId"]

	var request models.SubmitArtifactsRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_BODY, err)
		return
	}

	artifacts, err := decodeArtifacts(request.Artifacts)
	if err != nil {
		respondWithErr(w, http.StatusBadRequest, "invalid request", "failed to decode artifacts", err)
		return
	}

	session, err := state.orchestrator.RunVerification(r.Context(), sessionId, artifacts)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		respondWithErr(w, http.StatusNotFound, "session not found", ERR_SESSION_LOOKUP, err)
		return
	case errors.Is(err, ErrInvalidArtifacts):
		respondWithErr(w, http.StatusBadRequest, err.Error(), ERR_VERIFICATION_RUN, err)
		return
	case errors.Is(err, ErrSessionNotPending), errors.Is(err, ErrArtifactsAlreadySubmitted):
		respondWithErr(w, http.StatusConflict, err.Error(), ERR_VERIFICATION_RUN, err)
		return
	case err != nil:
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_VERIFICATION_RUN, err)
		return
	}

	if session.State == models.StateCompleted {
		markIdentityStepComplete(state, r)
	}

	response := models.VerificationResultResponse{
		SessionId: session.SessionId,
		Status:    session.ResultStatus(),
		Fields:    session.NormalizedFields,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleVerificationResult(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	sessionId := mux.Vars(r)["sessionId"]

	session, err := state.verifications.GetSession(r.Context(), sessionId)
	if errors.Is(err, ErrSessionNotFound) {
		respondWithErr(w, http.StatusNotFound, "session not found", ERR_SESSION_LOOKUP, err)
		return
	}
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_SESSION_LOOKUP, err)
		return
	}

	response := models.VerificationResultResponse{
		SessionId: session.SessionId,
		Status:    session.ResultStatus(),
		Fields:    session.NormalizedFields,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleWebhook(state *ServerState, provider models.Provider, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		// still acknowledge: the provider retries on non-2xx
		slog.Warn("Failed to read webhook body", "provider", provider, "error", err)
		payload = nil
	}

	received := state.webhooks.Receive(r.Context(), provider, payload)

	if err := writeJSON(w, http.StatusOK, models.WebhookAckResponse{Received: received}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func markIdentityStepComplete(state *ServerState, r *http.Request) {
	ctx := r.Context()
	progress, err := state.progress.GetProgress(ctx, mockUser.Id)
	if err != nil {
		slog.Warn("Failed to load progress after verification", "error", err)
		return
	}
	progress.MarkCompleted(models.StepIdentity)
	if err := state.progress.SaveProgress(ctx, mockUser.Id, progress); err != nil {
		slog.Warn("Failed to save progress after verification", "error", err)
	}
}

// decodeArtifacts turns the inbound base64 payloads into binary artifacts.
// Data URIs are accepted and their prefix wins over an explicit content type.
func decodeArtifacts(payloads []models.ArtifactPayload) ([]models.Artifact, error) {
	artifacts := make([]models.Artifact, 0, len(payloads))
	for _, payload := range payloads {
		data := payload.Data
		contentType := payload.ContentType

		if strings.HasPrefix(data, "data:") {
			rest := data[len("data:"):]
			marker := strings.Index(rest, ";base64,")
			if marker < 0 {
				return nil, fmt.Errorf("artifact %s: malformed data URI", payload.Kind)
			}
			contentType = rest[:marker]
			data = rest[marker+len(";base64,"):]
		}

		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: invalid base64 payload: %w", payload.Kind, err)
		}
		if contentType == "" {
			contentType = models.DefaultArtifactContentType
		}

		artifacts = append(artifacts, models.Artifact{
			Kind:        payload.Kind,
			Bytes:       raw,
			ContentType: contentType,
		})
	}
	return artifacts, nil
}

// helpers ------------

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	w.WriteHeader(code)
	if _, err := w.Write([]byte(responseBody)); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		slog.Debug("Non-POST request rejected", "method", r.Method, "path", r.URL.Path)
		respondWithErr(w, http.StatusMethodNotAllowed, "method not allowed", "invalid method", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written successfully", "status_code", status, "payload_size", len(payload))
	}
	return nil
}
