package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Save original env and restore after test
	originalEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, env := range originalEnv {
			for i, c := range env {
				if c == '=' {
					os.Setenv(env[:i], env[i+1:])
					break
				}
			}
		}
	}()

	// Clear env to test defaults
	os.Clearenv()

	cfg := Load()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Port", cfg.Port, 8080},
		{"LogLevel", cfg.LogLevel, "info"},
		{"OllamaBaseURL", cfg.OllamaBaseURL, "http://localhost:11434"},
		{"OllamaModel", cfg.OllamaModel, "mistral-small:latest"},
		{"OllamaTimeout", cfg.OllamaTimeout, 120 * time.Second},
		{"OllamaMaxRetries", cfg.OllamaMaxRetries, 3},
		{"RetryBaseDelay", cfg.RetryBaseDelay, time.Second},
		{"BreakerThreshold", cfg.BreakerThreshold, 5},
		{"BreakerCooldown", cfg.BreakerCooldown, 60 * time.Second},
		{"CacheProvider", cfg.CacheProvider, "noop"},
		{"BatchConcurrency", cfg.BatchConcurrency, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("expected %s=%v, got %v", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	originalURL := os.Getenv("OLLAMA_BASE_URL")
	originalTimeout := os.Getenv("OLLAMA_TIMEOUT")
	defer func() {
		os.Setenv("OLLAMA_BASE_URL", originalURL)
		os.Setenv("OLLAMA_TIMEOUT", originalTimeout)
	}()

	os.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")
	os.Setenv("OLLAMA_TIMEOUT", "30s")

	cfg := Load()

	if cfg.OllamaBaseURL != "http://ollama:11434" {
		t.Errorf("expected base url 'http://ollama:11434', got %s", cfg.OllamaBaseURL)
	}
	if cfg.OllamaTimeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", cfg.OllamaTimeout)
	}
}
