// No t.Parallel(): env vars are process-global and not thread-safe.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matiasleandrokruk/scalechat/internal/infra/llm"
)

var allKeys = []string{
	envKeyConfigFile, envKeyLLMProvider, envKeyLLMModelName, envKeyLLMBaseURL,
	envKeyOpenAIAPIKey, envKeyOpenAIBaseURL, envKeyLLMGenerateTimeout, envKeyHost,
	envKeyPort, envKeyDatabasePath, envKeyHistoryMax, envKeyWSRateLimit, envKeyWSRateBurst,
	envKeyEnvironment, envKeyPodName, envKeyPodNamespace, envKeyLogLevel, envKeyLogFormat,
}

// clearEnv ensures env vars are unset so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMProvider != "ollama" {
		t.Errorf("expected LLMProvider 'ollama', got %q", cfg.LLMProvider)
	}
	if cfg.LLMBaseURL != "http://localhost:11434" {
		t.Errorf("expected LLMBaseURL 'http://localhost:11434', got %q", cfg.LLMBaseURL)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 8000 {
		t.Errorf("expected listen on 0.0.0.0:8000, got %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.DatabasePath != ":memory:" {
		t.Errorf("expected DatabasePath ':memory:', got %q", cfg.DatabasePath)
	}
	if cfg.HistoryMaxMessages != 0 {
		t.Errorf("expected unbounded history, got %d", cfg.HistoryMaxMessages)
	}
	if cfg.Environment != "development" || cfg.PodNamespace != "default" {
		t.Errorf("unexpected deployment defaults: %q / %q", cfg.Environment, cfg.PodNamespace)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("HISTORY_MAX_MESSAGES", "40")
	t.Setenv("WS_RATE_LIMIT", "2.5")
	t.Setenv("LLM_GENERATE_TIMEOUT", "45s")
	t.Setenv("HOSTNAME", "chat-7d9f")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("expected LLMProvider 'openai', got %q", cfg.LLMProvider)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.HistoryMaxMessages != 40 {
		t.Errorf("expected HistoryMaxMessages 40, got %d", cfg.HistoryMaxMessages)
	}
	if cfg.WSRateLimit != 2.5 {
		t.Errorf("expected WSRateLimit 2.5, got %v", cfg.WSRateLimit)
	}
	if cfg.LLMGenerateTimeout != 45*time.Second {
		t.Errorf("expected LLMGenerateTimeout 45s, got %v", cfg.LLMGenerateTimeout)
	}
	if cfg.PodName != "chat-7d9f" {
		t.Errorf("expected PodName 'chat-7d9f', got %q", cfg.PodName)
	}
}

func TestLoad_YAMLOverlayThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "scalechat.yaml")
	yamlDoc := strings.Join([]string{
		"llm_provider: mock",
		"port: 7000",
		"history_max_messages: 12",
		"llm_generate_timeout: 90s",
		"log_format: json",
	}, "\n")
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMProvider != "mock" {
		t.Errorf("expected LLMProvider 'mock' from file, got %q", cfg.LLMProvider)
	}
	if cfg.Port != 7100 {
		t.Errorf("expected env PORT to win over file, got %d", cfg.Port)
	}
	if cfg.HistoryMaxMessages != 12 {
		t.Errorf("expected HistoryMaxMessages 12, got %d", cfg.HistoryMaxMessages)
	}
	if cfg.LLMGenerateTimeout != 90*time.Second {
		t.Errorf("expected LLMGenerateTimeout 90s, got %v", cfg.LLMGenerateTimeout)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected LogFormat 'json', got %q", cfg.LogFormat)
	}
	if cfg.LLMBaseURL != "http://localhost:11434" {
		t.Errorf("expected defaults to survive the overlay, got %q", cfg.LLMBaseURL)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing CONFIG_FILE, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"non-numeric port", "PORT", "eighty"},
		{"port out of range", "PORT", "70000"},
		{"unknown provider", "LLM_PROVIDER", "anthropic"},
		{"negative history", "HISTORY_MAX_MESSAGES", "-1"},
		{"bad duration", "LLM_GENERATE_TIMEOUT", "soon"},
		{"zero rate", "WS_RATE_LIMIT", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_UnknownProviderWrapsSentinel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "bogus")

	_, err := Load()
	if !errors.Is(err, llm.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestProviderConfig(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		cfg := Default()
		pc := cfg.ProviderConfig()
		if pc.Kind != llm.KindOllama || pc.ModelName != "llama2" || pc.BaseURL != "http://localhost:11434" {
			t.Errorf("unexpected ollama config: %+v", pc)
		}
		if pc.Credential != "" {
			t.Errorf("expected no credential for ollama, got %q", pc.Credential)
		}
	})

	t.Run("openai", func(t *testing.T) {
		cfg := Default()
		cfg.LLMProvider = "openai"
		cfg.OpenAIAPIKey = "sk-test"
		cfg.LLMGenerateTimeout = 12 * time.Second
		pc := cfg.ProviderConfig()
		if pc.Kind != llm.KindOpenAI || pc.ModelName != "gpt-3.5-turbo" {
			t.Errorf("unexpected openai identity: %+v", pc)
		}
		if pc.BaseURL != "https://api.openai.com/v1" || pc.Credential != "sk-test" {
			t.Errorf("unexpected openai endpoint: %q / %q", pc.BaseURL, pc.Credential)
		}
		if pc.Timeouts.Generate != 12*time.Second {
			t.Errorf("expected generate timeout override, got %v", pc.Timeouts.Generate)
		}
	})

	t.Run("explicit model", func(t *testing.T) {
		cfg := Default()
		cfg.LLMModelName = "llama3.2:3b"
		if got := cfg.ProviderConfig().ModelName; got != "llama3.2:3b" {
			t.Errorf("expected model 'llama3.2:3b', got %q", got)
		}
	})
}

func TestEnvOr_Present(t *testing.T) {
	t.Setenv("TEST_ENVOR_KEY", "custom-value")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "custom-value" {
		t.Errorf("expected 'custom-value', got %q", got)
	}
}

func TestEnvOr_Absent(t *testing.T) {
	t.Setenv("TEST_ENVOR_KEY", "")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "fallback" {
		t.Errorf("expected 'fallback', got %q", got)
	}
}
