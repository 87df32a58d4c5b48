package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddr != ":8554" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.WSPath != "/gema" {
		t.Errorf("WSPath = %q", cfg.WSPath)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.TimeoutMultiple != 2 {
		t.Errorf("TimeoutMultiple = %d", cfg.TimeoutMultiple)
	}
	if cfg.LivenessTimeout() != 60*time.Second {
		t.Errorf("LivenessTimeout = %v", cfg.LivenessTimeout())
	}
	if cfg.PipelineProvider != PipelineMock {
		t.Errorf("PipelineProvider = %q", cfg.PipelineProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMA_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("GEMA_TIMEOUT_MULTIPLE", "3")
	t.Setenv("GEMA_WS_PATH", "voice")
	t.Setenv("GEMA_SEND_QUEUE_SIZE", "64")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.LivenessTimeout() != 15*time.Second {
		t.Errorf("LivenessTimeout = %v", cfg.LivenessTimeout())
	}
	if cfg.WSPath != "/voice" {
		t.Errorf("WSPath = %q, want leading slash added", cfg.WSPath)
	}
	if cfg.SendQueueSize != 64 {
		t.Errorf("SendQueueSize = %d", cfg.SendQueueSize)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "GEMA_HEARTBEAT_INTERVAL", "soon"},
		{"bad int", "GEMA_TIMEOUT_MULTIPLE", "two"},
		{"timeout multiple too small", "GEMA_TIMEOUT_MULTIPLE", "1"},
		{"unknown pipeline", "GEMA_PIPELINE", "psychic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Error("expected Load to fail")
			}
		})
	}
}

func TestAssistPipelineRequiresKey(t *testing.T) {
	t.Setenv("GEMA_PIPELINE", PipelineAssist)
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("expected Load to fail without GEMINI_API_KEY")
	}

	t.Setenv("GEMINI_API_KEY", "key")
	if _, err := Load(); err != nil {
		t.Errorf("Load with key: %v", err)
	}
}
