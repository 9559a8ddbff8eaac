// Package config resolves the service's runtime settings — the Lang-B
// tracer binary path, the Lang-A evaluation deadline, and downstream
// connection strings — from HashiCorp Vault, falling back to environment
// variables so the service remains runnable without a Vault deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/vault/api"
)

// SecretManager wraps the Vault API client for reading secrets.
type SecretManager struct {
	client *api.Client
}

// NewSecretManager creates a Vault client pointed at the given address and
// authenticated with the provided token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetSecret reads a secret at the given path and returns the raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (s *SecretManager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 is a convenience wrapper that reads from a KV v2 backend and
// returns the inner "data" map, unwrapping the v2 envelope automatically.
func (s *SecretManager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := s.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// ServiceConfig holds every runtime setting the core needs, resolved from
// a KV2 secret map with environment-variable fallbacks.
type ServiceConfig struct {
	TracerPath    string
	LangADeadline time.Duration
	LangBTempDir  string
	NATSURL       string
	PostgresURL   string
	OTelEndpoint  string
}

// Resolve builds a ServiceConfig, preferring values present in secrets
// (typically sourced from Vault) and falling back to the named environment
// variable, then to a hardcoded default.
func Resolve(secrets map[string]interface{}) ServiceConfig {
	return ServiceConfig{
		TracerPath:    stringSetting(secrets, "TRACER_PATH", "TRACER_PATH", "/usr/local/bin/langb-tracer"),
		LangADeadline: durationSetting(secrets, "LANG_A_DEADLINE_MS", "LANG_A_DEADLINE_MS", time.Second),
		LangBTempDir:  stringSetting(secrets, "LANG_B_TEMP_DIR", "LANG_B_TEMP_DIR", "./temp"),
		NATSURL:       stringSetting(secrets, "NATS_URL", "NATS_URL", ""),
		PostgresURL:   stringSetting(secrets, "PG_URL", "PG_URL", ""),
		OTelEndpoint:  stringSetting(secrets, "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func stringSetting(secrets map[string]interface{}, secretKey, envKey, fallback string) string {
	if secrets != nil {
		if v, ok := secrets[secretKey].(string); ok && v != "" {
			return v
		}
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

func durationSetting(secrets map[string]interface{}, secretKey, envKey string, fallback time.Duration) time.Duration {
	raw := stringSetting(secrets, secretKey, envKey, "")
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
