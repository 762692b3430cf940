// Package config provides application-wide configuration.
// Values resolve in three layers: built-in defaults, an optional YAML file
// named by CONFIG_FILE, then environment variables. All fields have safe
// defaults so the binary runs locally without any env setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matiasleandrokruk/scalechat/internal/infra/llm"
)

// Config holds runtime configuration for scalechat.
type Config struct {
	// LLM
	LLMProvider        string        `yaml:"llm_provider"`         // LLM_PROVIDER, default: "ollama"
	LLMModelName       string        `yaml:"llm_model_name"`       // LLM_MODEL_NAME, default: per provider
	LLMBaseURL         string        `yaml:"llm_base_url"`         // LLM_BASE_URL, default: "http://localhost:11434"
	OpenAIAPIKey       string        `yaml:"openai_api_key"`       // OPENAI_API_KEY
	OpenAIBaseURL      string        `yaml:"openai_base_url"`      // OPENAI_BASE_URL, default: "https://api.openai.com/v1"
	LLMGenerateTimeout time.Duration `yaml:"llm_generate_timeout"` // LLM_GENERATE_TIMEOUT, default: per provider

	// Server
	Host string `yaml:"host"` // HOST, default: "0.0.0.0"
	Port int    `yaml:"port"` // PORT, default: 8000

	// Storage and sessions
	DatabasePath       string  `yaml:"database_path"`        // DATABASE_PATH, default: ":memory:"
	HistoryMaxMessages int     `yaml:"history_max_messages"` // HISTORY_MAX_MESSAGES, default: 0 (unbounded)
	WSRateLimit        float64 `yaml:"ws_rate_limit"`        // WS_RATE_LIMIT, frames/sec, default: 5
	WSRateBurst        int     `yaml:"ws_rate_burst"`        // WS_RATE_BURST, default: 10

	// Deployment
	Environment  string `yaml:"environment"`   // ENVIRONMENT, default: "development"
	PodName      string `yaml:"pod_name"`      // HOSTNAME
	PodNamespace string `yaml:"pod_namespace"` // POD_NAMESPACE, default: "default"

	// Logging
	LogLevel  string `yaml:"log_level"`  // LOG_LEVEL, default: "info"
	LogFormat string `yaml:"log_format"` // LOG_FORMAT, default: "text"
}

const (
	envKeyConfigFile         = "CONFIG_FILE"
	envKeyLLMProvider        = "LLM_PROVIDER"
	envKeyLLMModelName       = "LLM_MODEL_NAME"
	envKeyLLMBaseURL         = "LLM_BASE_URL"
	envKeyOpenAIAPIKey       = "OPENAI_API_KEY"
	envKeyOpenAIBaseURL      = "OPENAI_BASE_URL"
	envKeyLLMGenerateTimeout = "LLM_GENERATE_TIMEOUT"
	envKeyHost               = "HOST"
	envKeyPort               = "PORT"
	envKeyDatabasePath       = "DATABASE_PATH"
	envKeyHistoryMax         = "HISTORY_MAX_MESSAGES"
	envKeyWSRateLimit        = "WS_RATE_LIMIT"
	envKeyWSRateBurst        = "WS_RATE_BURST"
	envKeyEnvironment        = "ENVIRONMENT"
	envKeyPodName            = "HOSTNAME"
	envKeyPodNamespace       = "POD_NAMESPACE"
	envKeyLogLevel           = "LOG_LEVEL"
	envKeyLogFormat          = "LOG_FORMAT"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLMProvider:   string(llm.KindOllama),
		LLMBaseURL:    "http://localhost:11434",
		OpenAIBaseURL: "https://api.openai.com/v1",
		Host:          "0.0.0.0",
		Port:          8000,
		DatabasePath:  ":memory:",
		WSRateLimit:   5,
		WSRateBurst:   10,
		Environment:   "development",
		PodNamespace:  "default",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load resolves defaults, the CONFIG_FILE overlay and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(envKeyConfigFile); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := llm.ParseProviderKind(c.LLMProvider); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", envKeyLLMProvider, err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s: %d out of range", envKeyPort, c.Port))
	}
	if c.HistoryMaxMessages < 0 {
		errs = append(errs, fmt.Errorf("%s: must not be negative", envKeyHistoryMax))
	}
	if c.WSRateLimit <= 0 || c.WSRateBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s/%s: must be positive", envKeyWSRateLimit, envKeyWSRateBurst))
	}
	if c.LLMGenerateTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s: must not be negative", envKeyLLMGenerateTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ProviderConfig builds the immutable provider configuration. The base URL
// and credential depend on the provider kind.
func (c Config) ProviderConfig() llm.ProviderConfig {
	kind := llm.ProviderKind(c.LLMProvider)
	pc := llm.ProviderConfig{
		Kind:      kind,
		ModelName: c.LLMModelName,
		Timeouts:  llm.DefaultTimeouts(kind),
	}
	if pc.ModelName == "" {
		pc.ModelName = llm.DefaultModelName(kind)
	}
	switch kind {
	case llm.KindOllama:
		pc.BaseURL = c.LLMBaseURL
	case llm.KindOpenAI:
		pc.BaseURL = c.OpenAIBaseURL
		pc.Credential = c.OpenAIAPIKey
	}
	if c.LLMGenerateTimeout > 0 {
		pc.Timeouts.Generate = c.LLMGenerateTimeout
	}
	return pc
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	c.LLMProvider = envOr(envKeyLLMProvider, c.LLMProvider)
	c.LLMModelName = envOr(envKeyLLMModelName, c.LLMModelName)
	c.LLMBaseURL = envOr(envKeyLLMBaseURL, c.LLMBaseURL)
	c.OpenAIAPIKey = envOr(envKeyOpenAIAPIKey, c.OpenAIAPIKey)
	c.OpenAIBaseURL = envOr(envKeyOpenAIBaseURL, c.OpenAIBaseURL)
	c.Host = envOr(envKeyHost, c.Host)
	c.DatabasePath = envOr(envKeyDatabasePath, c.DatabasePath)
	c.Environment = envOr(envKeyEnvironment, c.Environment)
	c.PodName = envOr(envKeyPodName, c.PodName)
	c.PodNamespace = envOr(envKeyPodNamespace, c.PodNamespace)
	c.LogLevel = envOr(envKeyLogLevel, c.LogLevel)
	c.LogFormat = envOr(envKeyLogFormat, c.LogFormat)

	var err error
	if c.Port, err = envInt(envKeyPort, c.Port); err != nil {
		return err
	}
	if c.HistoryMaxMessages, err = envInt(envKeyHistoryMax, c.HistoryMaxMessages); err != nil {
		return err
	}
	if c.WSRateBurst, err = envInt(envKeyWSRateBurst, c.WSRateBurst); err != nil {
		return err
	}
	if c.WSRateLimit, err = envFloat(envKeyWSRateLimit, c.WSRateLimit); err != nil {
		return err
	}
	if c.LLMGenerateTimeout, err = envDuration(envKeyLLMGenerateTimeout, c.LLMGenerateTimeout); err != nil {
		return err
	}
	return nil
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return d, nil
}
