package config

import (
	"errors"
	"fmt"
	"os"

	"turnero/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Queue      QueueConfig      `yaml:"queue"`
	Predictor  PredictorConfig  `yaml:"predictor"`
	Exports    ExportConfig     `yaml:"exports"`
	Services   []ServiceSeed    `yaml:"services"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type QueueConfig struct {
	AvgServiceMinutes       int `yaml:"avg_service_minutes"`
	DefaultMaxCapacity      int `yaml:"default_max_capacity"`
	ReminderIntervalSeconds int `yaml:"reminder_interval_seconds"`
	ReminderPositions       int `yaml:"reminder_positions"`
	PositionTTLSeconds      int `yaml:"position_ttl_seconds"`
}

type PredictorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	ImageURL       string `yaml:"image_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// ServiceSeed declares a service in the config file. Seeded services are
// upserted on startup without touching their queue counters.
type ServiceSeed struct {
	ID                int64  `yaml:"id"`
	EstablishmentID   int64  `yaml:"establishment_id"`
	Name              string `yaml:"name"`
	MaxCapacity       int    `yaml:"max_capacity"`
	AvgServiceMinutes int    `yaml:"avg_service_minutes"`
	Open              *bool  `yaml:"open"`
}

// IsOpen defaults to true when the seed does not say otherwise.
func (s ServiceSeed) IsOpen() bool {
	return s.Open == nil || *s.Open
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside of local development
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Environment variable substitution inside the YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Predictor.Enabled && c.Predictor.BaseURL == "" {
		return errors.New("predictor base_url is required when predictor is enabled")
	}

	return ValidateServices(c.Services)
}

func ValidateServices(services []ServiceSeed) error {
	seen := make(map[int64]bool)
	for _, s := range services {
		if s.ID == 0 {
			return fmt.Errorf("service '%s' has invalid ID 0", s.Name)
		}
		if s.Name == "" {
			return fmt.Errorf("service %d has no name", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate service ID found: %d", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Queue defaults
	if c.Queue.AvgServiceMinutes == 0 {
		c.Queue.AvgServiceMinutes = models.DefaultAvgServiceMinutes
	}
	if c.Queue.DefaultMaxCapacity == 0 {
		c.Queue.DefaultMaxCapacity = models.DefaultMaxCapacity
	}
	if c.Queue.ReminderIntervalSeconds == 0 {
		c.Queue.ReminderIntervalSeconds = models.DefaultReminderIntervalSeconds
	}
	if c.Queue.ReminderPositions == 0 {
		c.Queue.ReminderPositions = models.ReminderPositions
	}
	if c.Queue.PositionTTLSeconds == 0 {
		c.Queue.PositionTTLSeconds = models.DefaultPositionTTL
	}

	if c.Predictor.TimeoutSeconds == 0 {
		c.Predictor.TimeoutSeconds = models.PredictorTimeoutSeconds
	}
}
