// Package config loads server settings from .env, an optional YAML file and
// the environment, in increasing order of precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/match"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config holds every server setting.
type Config struct {
	Addr    string `yaml:"addr"`
	Storage string `yaml:"storage"`
	DBPath  string `yaml:"db_path"`

	BindingSecret string        `yaml:"binding_secret"`
	BindingTTL    time.Duration `yaml:"binding_ttl"`
	MatchRule     string        `yaml:"match_rule"`

	PlacesAPIURL    string        `yaml:"places_api_url"`
	PlacesAPIKey    string        `yaml:"places_api_key"`
	RatingsAPIURL   string        `yaml:"ratings_api_url"`
	RatingsAPIKey   string        `yaml:"ratings_api_key"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	PageSize        int           `yaml:"page_size"`

	RedisAddr        string   `yaml:"redis_addr"`
	NotifyWebhookURL string   `yaml:"notify_webhook_url"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	PublicURL        string   `yaml:"public_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// GeneratedSecret is set when BindingSecret was generated at startup;
	// bindings then stop verifying after a restart.
	GeneratedSecret bool `yaml:"-"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:            ":8080",
		Storage:         StorageMemory,
		DBPath:          "./data/dining.db",
		BindingTTL:      30 * 24 * time.Hour,
		MatchRule:       string(match.RuleSuperLike),
		ProviderTimeout: 8 * time.Second,
		PageSize:        20,
		AllowedOrigins:  []string{"*"},
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration. A missing .env is fine; a path that was
// given but cannot be read is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ADDR":               &c.Addr,
		"STORAGE":            &c.Storage,
		"DB_PATH":            &c.DBPath,
		"BINDING_SECRET":     &c.BindingSecret,
		"MATCH_RULE":         &c.MatchRule,
		"PLACES_API_URL":     &c.PlacesAPIURL,
		"PLACES_API_KEY":     &c.PlacesAPIKey,
		"RATINGS_API_URL":    &c.RatingsAPIURL,
		"RATINGS_API_KEY":    &c.RatingsAPIKey,
		"REDIS_ADDR":         &c.RedisAddr,
		"NOTIFY_WEBHOOK_URL": &c.NotifyWebhookURL,
		"PUBLIC_URL":         &c.PublicURL,
		"LOG_LEVEL":          &c.LogLevel,
		"LOG_FORMAT":         &c.LogFormat,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"BINDING_TTL":      &c.BindingTTL,
		"PROVIDER_TIMEOUT": &c.ProviderTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v := os.Getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PAGE_SIZE: %w", err)
		}
		c.PageSize = n
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage %q (want %s or %s)", c.Storage, StorageMemory, StorageSQLite)
	}
	if _, err := match.ParseRule(c.MatchRule); err != nil {
		return err
	}
	if c.PageSize <= 0 || c.PageSize > 50 {
		return fmt.Errorf("page size must be in 1..50, got %d", c.PageSize)
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("provider timeout must be positive")
	}
	if c.BindingTTL < 0 {
		return errors.New("binding ttl must not be negative")
	}

	if c.BindingSecret == "" {
		if c.Storage != StorageMemory {
			return fmt.Errorf("BINDING_SECRET is required with %s storage", c.Storage)
		}
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.BindingSecret = secret
		c.GeneratedSecret = true
		slog.Warn("BINDING_SECRET not set, using a random secret; member bindings will not survive a restart")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate binding secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
