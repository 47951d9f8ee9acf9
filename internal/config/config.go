package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"time"
)

type APIConfig struct {
	Addr        string
	DatabaseURL string
	TokenSecret string
	TokenTTL    time.Duration

	// TokenSecretGenerated marks that no secret was configured and a
	// per-process one was minted; identities then die with the process.
	TokenSecretGenerated bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("RAILS_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:        addr,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TokenSecret: strings.TrimSpace(os.Getenv("RAILS_TOKEN_SECRET")),
		TokenTTL:    envDurationDefault("RAILS_TOKEN_TTL", 30*24*time.Hour),
	}
	if cfg.TokenSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return cfg, err
		}
		cfg.TokenSecret = hex.EncodeToString(buf)
		cfg.TokenSecretGenerated = true
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("RAILS_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
