// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Pipeline provider selection.
const (
	PipelineMock   = "mock"
	PipelineAssist = "assist"
)

// Config contains all runtime settings for the bridge server.
type Config struct {
	BindAddr        string
	WSPath          string
	ShutdownTimeout time.Duration

	// Liveness policy: a ping goes out after HeartbeatInterval of silence,
	// and the session is declared dead after HeartbeatInterval multiplied by
	// TimeoutMultiple.
	HeartbeatInterval time.Duration
	TimeoutMultiple   int

	WriteTimeout   time.Duration
	MaxMessageSize int64
	MaxSpanBytes   int
	SendQueueSize  int

	JWTSecret string

	MetricsNamespace string

	PipelineProvider string
	SpeechLanguage   string

	GeminiAPIKey string
	GeminiModel  string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	MongoURI      string
	MongoDatabase string

	StatusWebhookURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("GEMA_BIND_ADDR", ":8554"),
		WSPath:            envOrDefault("GEMA_WS_PATH", "/gema"),
		MetricsNamespace:  envOrDefault("GEMA_METRICS_NAMESPACE", "gema"),
		JWTSecret:         envOrDefault("GEMA_JWT_SECRET", ""),
		PipelineProvider:  envOrDefault("GEMA_PIPELINE", PipelineMock),
		SpeechLanguage:    envOrDefault("GEMA_SPEECH_LANGUAGE", "en-US"),
		GeminiAPIKey:      envOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:       envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		ElevenLabsAPIKey:  envOrDefault("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: envOrDefault("ELEVENLABS_VOICE_ID", ""),
		MongoURI:          envOrDefault("MONGODB_URI", ""),
		MongoDatabase:     envOrDefault("MONGODB_DATABASE", "gema"),
		StatusWebhookURL:  strings.TrimSpace(os.Getenv("GEMA_STATUS_WEBHOOK_URL")),
	}
	if !strings.HasPrefix(cfg.WSPath, "/") {
		cfg.WSPath = "/" + cfg.WSPath
	}

	var err error
	if cfg.ShutdownTimeout, err = durationOrDefault("GEMA_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = durationOrDefault("GEMA_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = durationOrDefault("GEMA_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TimeoutMultiple, err = intOrDefault("GEMA_TIMEOUT_MULTIPLE", 2); err != nil {
		return Config{}, err
	}
	maxMsg, err := intOrDefault("GEMA_MAX_MESSAGE_BYTES", 512*1024)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageSize = int64(maxMsg)
	if cfg.MaxSpanBytes, err = intOrDefault("GEMA_MAX_SPAN_BYTES", 4<<20); err != nil {
		return Config{}, err
	}
	if cfg.SendQueueSize, err = intOrDefault("GEMA_SEND_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}

	if cfg.HeartbeatInterval <= 0 {
		return Config{}, fmt.Errorf("GEMA_HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.TimeoutMultiple < 2 {
		return Config{}, fmt.Errorf("GEMA_TIMEOUT_MULTIPLE must be at least 2, got %d", cfg.TimeoutMultiple)
	}
	switch cfg.PipelineProvider {
	case PipelineMock, PipelineAssist:
	default:
		return Config{}, fmt.Errorf("unknown GEMA_PIPELINE %q", cfg.PipelineProvider)
	}
	if cfg.PipelineProvider == PipelineAssist && cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required for the assist pipeline")
	}

	return cfg, nil
}

// LivenessTimeout is the silence window after which a session is dead.
func (c Config) LivenessTimeout() time.Duration {
	return c.HeartbeatInterval * time.Duration(c.TimeoutMultiple)
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intOrDefault(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
