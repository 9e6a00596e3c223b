package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/metrics"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"

	"github.com/stretchr/testify/require"
)

// startTestServer boots a real server on a free local port with in-memory
// storage and mock-mode provider clients, and waits for it to answer the
// health check.
func startTestServer(t *testing.T) (string, *ServerState) {
	t.Helper()

	storage := NewInMemoryVerificationStorage()
	progress := NewInMemoryProgressStorage()
	collector := metrics.NewCollector()
	clients := map[models.Provider]ProviderClient{
		models.PersonaProvider: NewPersonaClient("", "", ""),
		models.OnfidoProvider:  NewOnfidoClient("", ""),
	}

	state := &ServerState{
		verifications: storage,
		progress:      progress,
		orchestrator:  NewOrchestrator(storage, clients, time.Millisecond, 3, collector),
		webhooks:      NewWebhookReceiver(storage, clients, collector),
		tokenCreator:  StaticTokenCreator{Token: mockAccessToken},
		collector:     collector,
	}

	port := freeLocalPort(t)
	server, err := NewServer(state, ServerConfig{Host: "127.0.0.1", Port: port})
	require.NoError(t, err)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("test server stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		_ = server.Stop()
	})

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForServer(t, baseURL)
	return baseURL, state
}

func freeLocalPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, baseURL string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not become healthy in time")
}

// postJSON posts body as JSON and decodes the response into out when the
// status matches wantStatus.
func postJSON(t *testing.T, url string, body any, wantStatus int, out any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}
