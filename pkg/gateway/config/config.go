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

	// RedisURL selects the durable store. Empty means the in-process memory
	// store, which is fine for local runs but loses state on restart.
	RedisURL string

	DefaultLanguage string
	DefaultVoice    string

	SessionTTL          time.Duration
	HistoryTTL          time.Duration
	InactivityThreshold time.Duration
	SweepInterval       time.Duration

	// Responder
	GeminiAPIKey     string
	GeminiModel      string
	ResponderTimeout time.Duration
	HistoryWindow    int

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket mode (/v1/live).
	LiveMaxJSONMessageBytes int64
	LiveHandshakeTimeout    time.Duration
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	WSMaxSessionDuration    time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("VOX_ADDR", ":8080"),
		RedisURL:                envOr("VOX_REDIS_URL", ""),
		DefaultLanguage:         envOr("VOX_DEFAULT_LANGUAGE", "en"),
		DefaultVoice:            envOr("VOX_DEFAULT_VOICE", "default"),
		SessionTTL:              envDurationOr("VOX_SESSION_TTL", 24*time.Hour),
		HistoryTTL:              envDurationOr("VOX_HISTORY_TTL", 24*time.Hour),
		InactivityThreshold:     envDurationOr("VOX_INACTIVITY_THRESHOLD", 30*time.Minute),
		SweepInterval:           envDurationOr("VOX_SWEEP_INTERVAL", 5*time.Minute),
		GeminiAPIKey:            envOr("VOX_GEMINI_API_KEY", ""),
		GeminiModel:             envOr("VOX_GEMINI_MODEL", ""),
		ResponderTimeout:        envDurationOr("VOX_RESPONDER_TIMEOUT", 30*time.Second),
		HistoryWindow:           envIntOr("VOX_HISTORY_WINDOW", 10),
		CORSAllowedOrigins:      make(map[string]struct{}),
		LiveMaxJSONMessageBytes: envInt64Or("VOX_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveHandshakeTimeout:    envDurationOr("VOX_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:      envDurationOr("VOX_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("VOX_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxSessionDuration:    envDurationOr("VOX_WS_MAX_DURATION", 2*time.Hour),
		ReadHeaderTimeout:       envDurationOr("VOX_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("VOX_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:     envDurationOr("VOX_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOX_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		return Config{}, fmt.Errorf("VOX_DEFAULT_LANGUAGE must not be empty")
	}
	if strings.TrimSpace(cfg.DefaultVoice) == "" {
		return Config{}, fmt.Errorf("VOX_DEFAULT_VOICE must not be empty")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("VOX_SESSION_TTL must be > 0")
	}
	if cfg.HistoryTTL <= 0 {
		return Config{}, fmt.Errorf("VOX_HISTORY_TTL must be > 0")
	}
	if cfg.InactivityThreshold <= 0 {
		return Config{}, fmt.Errorf("VOX_INACTIVITY_THRESHOLD must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("VOX_SWEEP_INTERVAL must be > 0")
	}
	if cfg.ResponderTimeout < 0 {
		return Config{}, fmt.Errorf("VOX_RESPONDER_TIMEOUT must be >= 0")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("VOX_HISTORY_WINDOW must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOX_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOX_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOX_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOX_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("VOX_WS_MAX_DURATION must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOX_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOX_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOX_SHUTDOWN_GRACE_PERIOD must be > 0")
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
