package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

const (
	EnvAPIURL   = "TASKDECK_API_URL"
	EnvAPIKey   = "TASKDECK_API_KEY"
	EnvLogLevel = "TASKDECK_LOG_LEVEL"
	EnvPerPage  = "TASKDECK_ITEMS_PER_PAGE"
)

var (
	ErrAPIURLRequired  = errors.New("api_url is required (set it in the config file or " + EnvAPIURL + ")")
	errInvalidPerPage  = errors.New("items_per_page must be at least 1")
	errInvalidTimeout  = errors.New("timeout_seconds must not be negative")
	errInvalidPort     = errors.New("server.port must be between 1 and 65535")
	errInvalidConfig   = errors.New("invalid config file")
	errInvalidEnvValue = errors.New("invalid environment value")
)

type ServerConfig struct {
	DBDriver string `json:"db_driver"`
	DBDSN    string `json:"db_dsn,omitempty"`
	Port     int    `json:"port"`
	APIKey   string `json:"api_key,omitempty"`
}

type Config struct {
	APIURL         string       `json:"api_url,omitempty"`
	APIKey         string       `json:"api_key,omitempty"`
	ItemsPerPage   int          `json:"items_per_page"`
	LogLevel       string       `json:"log_level"`
	LogFormat      string       `json:"log_format"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	Server         ServerConfig `json:"server"`
}

func Default() Config {
	return Config{
		ItemsPerPage:   6,
		LogLevel:       "info",
		LogFormat:      "text",
		TimeoutSeconds: 10,
		Server: ServerConfig{
			DBDriver: "sqlite",
			Port:     8080,
		},
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "taskdeck", "config.json"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads a JSONC config file over the defaults. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errInvalidConfig, path, err)
	}
	if err := json.Unmarshal(standardized, &config); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errInvalidConfig, path, err)
	}
	return config, nil
}

// ApplyEnv overrides fields from env, a map of environment variables.
func (c *Config) ApplyEnv(env map[string]string) error {
	if value := strings.TrimSpace(env[EnvAPIURL]); value != "" {
		c.APIURL = value
	}
	if value := strings.TrimSpace(env[EnvAPIKey]); value != "" {
		c.APIKey = value
	}
	if value := strings.TrimSpace(env[EnvLogLevel]); value != "" {
		c.LogLevel = value
	}
	if value := strings.TrimSpace(env[EnvPerPage]); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w %s=%q", errInvalidEnvValue, EnvPerPage, value)
		}
		c.ItemsPerPage = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.ItemsPerPage < 1 {
		return errInvalidPerPage
	}
	if c.TimeoutSeconds < 0 {
		return errInvalidTimeout
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errInvalidPort
	}
	return nil
}

// ValidateClient checks the settings needed to talk to a remote API.
func (c Config) ValidateClient() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrAPIURLRequired
	}
	return nil
}

// Save writes cfg as indented JSON, replacing path atomically.
func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	return atomic.WriteFile(path, strings.NewReader(string(data)))
}
