package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath         = "TGPOLL_CONFIG"
	envTelegramBotToken   = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom  = "TELEGRAM_ALLOW_FROM"
	envTelegramAPIServer  = "TELEGRAM_API_SERVER"
	defaultTimeoutSeconds = 30
	defaultGraceSeconds   = 5
	defaultGatewayHost    = "127.0.0.1"
	defaultGatewayPort    = 18790
	defaultCheckpointPath = "tgpoll.db"
)

const (
	CheckpointMemory = "memory"
	CheckpointSQLite = "sqlite"
)

// ErrNotFound is returned by LoadConfig when no config file exists in any of
// the searched locations.
var ErrNotFound = errors.New("config file not found")

// Config is the root runtime configuration loaded from config.json or config.yaml.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram" yaml:"telegram"`
	Polling    PollingConfig    `json:"polling" yaml:"polling"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`
	Gateway    GatewayConfig    `json:"gateway" yaml:"gateway"`
	Logging    LoggingConfig    `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

// TelegramConfig configures the bot connection.
type TelegramConfig struct {
	Token       string   `json:"token" yaml:"token"`
	APIServer   string   `json:"api_server" yaml:"api_server"`
	AllowFrom   []string `json:"allow_from" yaml:"allow_from"`
	UseKeychain bool     `json:"use_keychain" yaml:"use_keychain"`
}

// PollingConfig configures the getUpdates loop.
type PollingConfig struct {
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	GraceSeconds   int      `json:"grace_seconds" yaml:"grace_seconds"`
	Limit          int      `json:"limit" yaml:"limit"`
	AllowedUpdates []string `json:"allowed_updates" yaml:"allowed_updates"`
}

// CheckpointConfig selects where the poll cursor is persisted.
type CheckpointConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	Path   string `json:"path" yaml:"path"`
}

// GatewayConfig configures the gateway status server and built-in handler.
type GatewayConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Echo bool   `json:"echo" yaml:"echo"`
}

// PollTimeout is the long-poll window asked of the server.
func (p PollingConfig) PollTimeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RequestGrace is the extra client-side time allowed on top of PollTimeout.
func (p PollingConfig) RequestGrace() time.Duration {
	if p.GraceSeconds <= 0 {
		return defaultGraceSeconds * time.Second
	}
	return time.Duration(p.GraceSeconds) * time.Second
}

// DriverName returns the normalized checkpoint driver, defaulting to memory.
func (c CheckpointConfig) DriverName() string {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == "" {
		return CheckpointMemory
	}
	return driver
}

// FilePath returns the SQLite database path.
func (c CheckpointConfig) FilePath() string {
	if path := strings.TrimSpace(c.Path); path != "" {
		return path
	}
	return defaultCheckpointPath
}

// Addr returns the host:port the gateway status server binds to.
func (g GatewayConfig) Addr() string {
	host := strings.TrimSpace(g.Host)
	if host == "" {
		host = defaultGatewayHost
	}
	port := g.Port
	if port <= 0 {
		port = defaultGatewayPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// LoadConfig resolves the config file, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile reads one config file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
func LoadFile(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// FromEnv returns an empty config with environment overrides applied. Commands
// use it when no config file exists.
func FromEnv() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	return cfg
}

func (c *Config) validate() error {
	if c.Polling.TimeoutSeconds < 0 {
		return fmt.Errorf("polling.timeout_seconds must not be negative, got %d", c.Polling.TimeoutSeconds)
	}
	if c.Polling.Limit < 0 || c.Polling.Limit > 100 {
		return fmt.Errorf("polling.limit must be between 0 and 100, got %d", c.Polling.Limit)
	}

	switch c.Checkpoint.DriverName() {
	case CheckpointMemory, CheckpointSQLite:
	default:
		return fmt.Errorf("unsupported checkpoint driver %q", c.Checkpoint.Driver)
	}

	return nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if server := strings.TrimSpace(os.Getenv(envTelegramAPIServer)); server != "" {
		cfg.Telegram.APIServer = server
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TGPOLL_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config.yaml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s)", ErrNotFound, strings.Join(candidates, ", "))
}
