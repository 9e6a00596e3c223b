package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lucasmenegazzo-bix/valid8-onboarding/logging"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/metrics"
	"github.com/lucasmenegazzo-bix/valid8-onboarding/models"
	rds "github.com/lucasmenegazzo-bix/valid8-onboarding/redis"
)

type Config struct {
	ServerConfig        ServerConfig             `json:"server_config"`
	Persona             PersonaConfig            `json:"persona"`
	Onfido              OnfidoConfig             `json:"onfido"`
	PollIntervalSeconds int                      `json:"poll_interval_seconds,omitempty"`
	PollAttemptCeiling  uint                     `json:"poll_attempt_ceiling,omitempty"`
	StorageType         string                   `json:"storage_type"`
	RedisConfig         *rds.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig *rds.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`
	JwtSecret           string                   `json:"jwt_secret,omitempty"`
	JwtIssuer           string                   `json:"jwt_issuer,omitempty"`
	LogLevel            string                   `json:"log_level,omitempty"`
}

type PersonaConfig struct {
	ApiKey     string `json:"api_key,omitempty"`
	TemplateId string `json:"template_id,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
}

type OnfidoConfig struct {
	ApiToken string `json:"api_token,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	config, err := readConfigFile(*configPath)
	if err != nil {
		slog.Error("Failed to read config file", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logging.InitLogger(config.LogLevel)
	slog.Info("Configuration loaded", "path", *configPath, "storage_type", config.StorageType)

	verifications, progress, err := createStorage(config)
	if err != nil {
		slog.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	clients := map[models.Provider]ProviderClient{
		models.PersonaProvider: NewPersonaClient(config.Persona.ApiKey, config.Persona.TemplateId, config.Persona.BaseURL),
		models.OnfidoProvider:  NewOnfidoClient(config.Onfido.ApiToken, config.Onfido.BaseURL),
	}
	if config.Persona.ApiKey == "" {
		slog.Warn("Persona API key not configured, running the Persona client in mock mode")
	}
	if config.Onfido.ApiToken == "" {
		slog.Warn("Onfido API token not configured, running the Onfido client in mock mode")
	}

	pollInterval := DefaultPollInterval
	if config.PollIntervalSeconds > 0 {
		pollInterval = time.Duration(config.PollIntervalSeconds) * time.Second
	}
	pollAttempts := DefaultPollAttempts
	if config.PollAttemptCeiling > 0 {
		pollAttempts = config.PollAttemptCeiling
	}

	orchestrator := NewOrchestrator(verifications, clients, pollInterval, pollAttempts, collector)
	webhooks := NewWebhookReceiver(verifications, clients, collector)

	tokenCreator, err := createTokenCreator(config)
	if err != nil {
		slog.Error("Failed to create token creator", "error", err)
		os.Exit(1)
	}

	state := &ServerState{
		verifications: verifications,
		progress:      progress,
		orchestrator:  orchestrator,
		webhooks:      webhooks,
		tokenCreator:  tokenCreator,
		collector:     collector,
	}

	server, err := NewServer(state, config.ServerConfig)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	if err := server.ListenAndServe(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func readConfigFile(path string) (Config, error) {
	var config Config
	bytes, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(bytes, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

func createStorage(config Config) (VerificationStorage, ProgressStorage, error) {
	switch strings.ToLower(config.StorageType) {
	case "redis":
		if config.RedisConfig == nil {
			return nil, nil, fmt.Errorf("storage_type is redis but redis_config is missing")
		}
		client, err := rds.NewRedisClient(config.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		namespace := config.RedisConfig.Namespace
		return NewRedisVerificationStorage(client, namespace), NewRedisProgressStorage(client, namespace), nil
	case "redis_sentinel":
		if config.RedisSentinelConfig == nil {
			return nil, nil, fmt.Errorf("storage_type is redis_sentinel but redis_sentinel_config is missing")
		}
		client, err := rds.NewRedisSentinelClient(config.RedisSentinelConfig)
		if err != nil {
			return nil, nil, err
		}
		namespace := config.RedisSentinelConfig.Namespace
		return NewRedisVerificationStorage(client, namespace), NewRedisProgressStorage(client, namespace), nil
	case "memory", "":
		return NewInMemoryVerificationStorage(), NewInMemoryProgressStorage(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage_type: %v", config.StorageType)
	}
}

func createTokenCreator(config Config) (AccessTokenCreator, error) {
	if config.JwtSecret == "" {
		slog.Warn("JWT secret not configured, issuing a static mock access token")
		return &StaticTokenCreator{Token: mockAccessToken}, nil
	}
	issuer := config.JwtIssuer
	if issuer == "" {
		issuer = "valid8-onboarding"
	}
	return NewJwtAccessTokenCreator(config.JwtSecret, issuer, DefaultAccessTokenTTL)
}
