package config

import (
	"testing"
	"time"

	"github.com/lemmaiot/sme-consultant/internal/chat"
)

func validConfig() *Config {
	return &Config{
		Port:         "8080",
		DBPath:       "./data/consultant.db",
		GeminiAPIKey: "test-key",
		GeminiModel:  "gemini-2.5-flash",
		DailyLimit:   20,
		RateLimit:    RateLimitConfig{Requests: 10, Window: time.Minute},
		ConversationLog: chat.ConversationLogConfig{
			Dir:        "./data/logs",
			GlobalPath: "./data/logs/all.ndjson",
			QueueSize:  100,
		},
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Valid config should pass validation: %v", err)
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.GeminiAPIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Missing GEMINI_API_KEY should fail validation")
	}
}

func TestValidateRejectsZeroLimit(t *testing.T) {
	cfg := validConfig()
	cfg.DailyLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Zero daily limit should fail validation")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.DailyLimit != 20 {
		t.Errorf("Expected default daily limit 20, got %d", cfg.DailyLimit)
	}
	if !cfg.IsDevelopment() {
		t.Error("Empty FRONTEND_URL should mean development mode")
	}
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("Load should fail without GEMINI_API_KEY")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.FrontendURL = "https://consultant.lemmaiot.com.ng"
	if cfg.IsDevelopment() {
		t.Error("Production frontend URL should not be development")
	}
	cfg.FrontendURL = "http://localhost:5173"
	if !cfg.IsDevelopment() {
		t.Error("localhost frontend URL should be development")
	}
}
