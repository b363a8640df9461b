package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the process configuration: secrets and paths from the
// environment, tuning from nag-config.yaml.
type Config struct {
	TelegramToken string
	ChatID        int64 // 0 locks to the first chat that writes
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string

	StorageDriver string
	DatabaseURI   string
	DBPath        string

	LogLevel  string
	LogFormat string

	ConfigPath string
	Nag        NagConfig
}

// NagConfig mirrors nag-config.yaml.
type NagConfig struct {
	Defaults  Defaults        `yaml:"defaults"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Parser    ParserConfig    `yaml:"parser"`
}

type Defaults struct {
	FuzzyMinutes       int    `yaml:"fuzzy_minutes"`
	StrictByDefault    bool   `yaml:"strict_by_default"`
	NagIntervalMinutes int    `yaml:"nag_interval_minutes"`
	MaxNagAttempts     int    `yaml:"max_nag_attempts"`
	Timezone           string `yaml:"timezone"`
}

type SchedulerConfig struct {
	TickSeconds int `yaml:"tick_seconds"`
}

type ParserConfig struct {
	Model string `yaml:"model"`
}

// DefaultNagConfig is used when nag-config.yaml is absent, and fills any
// key the file leaves out.
func DefaultNagConfig() NagConfig {
	return NagConfig{
		Defaults: Defaults{
			FuzzyMinutes:       5,
			StrictByDefault:    false,
			NagIntervalMinutes: 15,
			MaxNagAttempts:     3,
			Timezone:           "UTC",
		},
		Scheduler: SchedulerConfig{TickSeconds: 30},
	}
}

// TickInterval is the scheduler period.
func (n NagConfig) TickInterval() time.Duration {
	return time.Duration(n.Scheduler.TickSeconds) * time.Second
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:      os.Getenv("AI_API_KEY"),
		AIBaseURL:     getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:       os.Getenv("AI_MODEL"),
		StorageDriver: getEnvOrDefault("STORAGE_DRIVER", DriverSQLite),
		DatabaseURI:   os.Getenv("DATABASE_URI"),
		DBPath:        getEnvOrDefault("DB_PATH", "data/nag.db"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "console"),
		ConfigPath:    getEnvOrDefault("CONFIG_PATH", "nag-config.yaml"),
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.ChatID = id
	}

	nag, err := LoadNagConfig(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Nag = nag

	// AI_MODEL wins over parser.model
	if cfg.AIModel == "" {
		cfg.AIModel = nag.Parser.Model
	}
	if cfg.AIModel == "" {
		cfg.AIModel = "openai/gpt-4o-mini"
	}

	return cfg, nil
}

// LoadNagConfig reads the YAML tuning file. A missing file yields
// DefaultNagConfig.
func LoadNagConfig(path string) (NagConfig, error) {
	nag := DefaultNagConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nag, nil
	}
	if err != nil {
		return nag, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &nag); err != nil {
		return nag, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nag, nil
}

// Validate checks the values the rest of the process relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	switch c.StorageDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURI == "" {
			errs = append(errs, errors.New("DATABASE_URI is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if err := c.Nag.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (n NagConfig) Validate() error {
	var errs []error
	d := n.Defaults
	if d.FuzzyMinutes < 0 {
		errs = append(errs, fmt.Errorf("defaults.fuzzy_minutes must be >= 0, got %d", d.FuzzyMinutes))
	}
	if d.NagIntervalMinutes <= 0 {
		errs = append(errs, fmt.Errorf("defaults.nag_interval_minutes must be > 0, got %d", d.NagIntervalMinutes))
	}
	if d.MaxNagAttempts < 0 {
		errs = append(errs, fmt.Errorf("defaults.max_nag_attempts must be >= 0, got %d", d.MaxNagAttempts))
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil || d.Timezone == "" {
		errs = append(errs, fmt.Errorf("defaults.timezone %q is not a valid IANA zone", d.Timezone))
	}
	if n.Scheduler.TickSeconds <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick_seconds must be > 0, got %d", n.Scheduler.TickSeconds))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
