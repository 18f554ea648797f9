package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Realtime speech upstream (signaling target).
	OpenAIRealtimeURL string
	OpenAIAPIKey      string
	RealtimeModel     string
	DefaultVoice      string
	// Default interviewer instructions applied when a session has no
	// stored configuration of its own.
	DefaultInstructions string

	// Transcript persistence. Empty DatabaseURL disables the Postgres store
	// and the gateway falls back to in-memory transcripts (dev mode).
	DatabaseURL string

	// Admin auth. AdminPassword empty => admin surface disabled.
	AdminPassword string
	JWTSecret     string
	TokenTTL      time.Duration

	// Post-session scoring. Empty ScoringAPIKey falls back to OpenAIAPIKey.
	ScoringModel  string
	ScoringAPIKey string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Spectator WebSocket feed.
	SpectatorWriteTimeout time.Duration
	SpectatorPingInterval time.Duration
	SpectatorQueueSize    int
	SpectatorsPerSession  int

	MaxBodyBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("LEIA_ADDR", ":8080"),
		OpenAIRealtimeURL:             envOr("LEIA_OPENAI_REALTIME_URL", "https://api.openai.com/v1/realtime/calls"),
		OpenAIAPIKey:                  strings.TrimSpace(os.Getenv("LEIA_OPENAI_API_KEY")),
		RealtimeModel:                 envOr("LEIA_REALTIME_MODEL", "gpt-realtime"),
		DefaultVoice:                  envOr("LEIA_DEFAULT_VOICE", "marin"),
		DefaultInstructions:           strings.TrimSpace(os.Getenv("LEIA_DEFAULT_INSTRUCTIONS")),
		DatabaseURL:                   strings.TrimSpace(os.Getenv("LEIA_DATABASE_URL")),
		AdminPassword:                 strings.TrimSpace(os.Getenv("LEIA_ADMIN_PASSWORD")),
		JWTSecret:                     strings.TrimSpace(os.Getenv("LEIA_JWT_SECRET")),
		TokenTTL:                      envDurationOr("LEIA_TOKEN_TTL", 12*time.Hour),
		ScoringModel:                  envOr("LEIA_SCORING_MODEL", "gpt-4o-mini"),
		ScoringAPIKey:                 strings.TrimSpace(os.Getenv("LEIA_SCORING_API_KEY")),
		CORSAllowedOrigins:            make(map[string]struct{}),
		SpectatorWriteTimeout:         envDurationOr("LEIA_SPECTATOR_WRITE_TIMEOUT", 5*time.Second),
		SpectatorPingInterval:         envDurationOr("LEIA_SPECTATOR_PING_INTERVAL", 20*time.Second),
		SpectatorQueueSize:            envIntOr("LEIA_SPECTATOR_QUEUE_SIZE", 64),
		SpectatorsPerSession:          envIntOr("LEIA_SPECTATORS_PER_SESSION", 16),
		MaxBodyBytes:                  envInt64Or("LEIA_MAX_BODY_BYTES", 1<<20), // 1 MiB; SDP offers are small
		ReadHeaderTimeout:             envDurationOr("LEIA_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("LEIA_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:           envDurationOr("LEIA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("LEIA_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("LEIA_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("LEIA_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.OpenAIRealtimeURL) == "" {
		return Config{}, fmt.Errorf("LEIA_OPENAI_REALTIME_URL must not be empty")
	}
	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("LEIA_OPENAI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.RealtimeModel) == "" {
		return Config{}, fmt.Errorf("LEIA_REALTIME_MODEL must not be empty")
	}
	if cfg.AdminPassword != "" && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("LEIA_JWT_SECRET must be set when LEIA_ADMIN_PASSWORD is configured")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("LEIA_TOKEN_TTL must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("LEIA_MAX_BODY_BYTES must be > 0")
	}
	if cfg.SpectatorWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LEIA_SPECTATOR_WRITE_TIMEOUT must be > 0")
	}
	if cfg.SpectatorPingInterval <= 0 {
		return Config{}, fmt.Errorf("LEIA_SPECTATOR_PING_INTERVAL must be > 0")
	}
	if cfg.SpectatorQueueSize <= 0 {
		return Config{}, fmt.Errorf("LEIA_SPECTATOR_QUEUE_SIZE must be > 0")
	}
	if cfg.SpectatorsPerSession <= 0 {
		return Config{}, fmt.Errorf("LEIA_SPECTATORS_PER_SESSION must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("LEIA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("LEIA_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("LEIA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("LEIA_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("LEIA_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
