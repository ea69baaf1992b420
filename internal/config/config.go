// Package config loads, validates, and persists the bot configuration from
// JSON or YAML files with environment variable expansion.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Reasoner ReasonerConfig `json:"reasoner" yaml:"reasoner"`
	Speech   SpeechConfig   `json:"speech" yaml:"speech"`
	Renderer RendererConfig `json:"renderer" yaml:"renderer"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
}

type GeneralConfig struct {
	BotName               string `json:"botName" yaml:"botName"`
	LogLevel              string `json:"logLevel" yaml:"logLevel"`
	LogFile               string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

// ReasonerConfig configures the chat completion backend.
type ReasonerConfig struct {
	APIBase      string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey       string `json:"apiKey" yaml:"apiKey"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
}

// SpeechConfig configures text-to-speech synthesis.
type SpeechConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // "openai" | "elevenlabs"
	APIBase  string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Voice    string `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// RendererConfig configures the document rendering service.
type RendererConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Web      WebConfig      `json:"web" yaml:"web"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allowFrom,omitempty" yaml:"allowFrom,omitempty"`
	ParseMode string   `json:"parseMode,omitempty" yaml:"parseMode,omitempty"`
}

// WebConfig configures the HTTP health and metrics endpoints.
type WebConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// AnalysisConfig tunes the file triage pipeline budgets.
type AnalysisConfig struct {
	SniffWindow     int `json:"sniffWindow,omitempty" yaml:"sniffWindow,omitempty"`
	ByteBudget      int `json:"byteBudget,omitempty" yaml:"byteBudget,omitempty"`
	TimeoutSeconds  int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	MaxSummaryChars int `json:"maxSummaryChars,omitempty" yaml:"maxSummaryChars,omitempty"`
}

type MemoryConfig struct {
	Enabled                   bool   `json:"enabled" yaml:"enabled"`
	DBPath                    string `json:"dbPath" yaml:"dbPath"`
	MaxHistoryPerConversation int    `json:"maxHistoryPerConversation" yaml:"maxHistoryPerConversation"`
}

// DefaultConfigDir returns the default config directory (~/.triagebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".triagebot"
	}
	return filepath.Join(home, ".triagebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config from a JSON or YAML file (decided by extension),
// expands environment variables, applies defaults, and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.RequestTimeoutSeconds < 1 {
		errs = append(errs, "general.requestTimeoutSeconds must be >= 1")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}

	if cfg.Analysis.SniffWindow < 0 {
		errs = append(errs, "analysis.sniffWindow must be >= 0")
	}
	if cfg.Analysis.ByteBudget < 0 {
		errs = append(errs, "analysis.byteBudget must be >= 0")
	}
	if cfg.Analysis.TimeoutSeconds < 0 {
		errs = append(errs, "analysis.timeoutSeconds must be >= 0")
	}

	if cfg.Memory.Enabled && cfg.Memory.MaxHistoryPerConversation < 1 {
		errs = append(errs, "memory.maxHistoryPerConversation must be >= 1")
	}

	switch cfg.Speech.Provider {
	case "", "openai", "elevenlabs":
	default:
		errs = append(errs, "speech.provider must be one of: openai, elevenlabs")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CheckRequired verifies the credentials the gateway cannot start without.
// Called at startup so a missing token fails fast instead of at first use.
func CheckRequired(cfg *Config) error {
	var missing []string

	if cfg.Channels.Telegram.Enabled && unresolved(cfg.Channels.Telegram.Token) {
		missing = append(missing, "channels.telegram.token (TELEGRAM_BOT_TOKEN)")
	}
	if unresolved(cfg.Reasoner.APIKey) {
		missing = append(missing, "reasoner.apiKey (GROQ_API_KEY)")
	}
	if cfg.Speech.Enabled && unresolved(cfg.Speech.APIKey) {
		missing = append(missing, "speech.apiKey")
	}
	if cfg.Renderer.Enabled && unresolved(cfg.Renderer.APIBase) {
		missing = append(missing, "renderer.apiBase")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration:\n  - %s", strings.Join(missing, "\n  - "))
	}
	return nil
}

// unresolved reports an empty value or a ${VAR} placeholder that never got
// an environment value.
func unresolved(s string) bool {
	return s == "" || strings.HasPrefix(s, "${")
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
