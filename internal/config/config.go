// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	RabbitMQ RabbitMQConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Server   ServerConfig
	Redis    RedisConfig
	YouTube  YouTubeConfig
	Jobs     JobsConfig
	Titles   TitlesConfig
	Metrics  MetricsConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	APIKeys         []string
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// RedisConfig points at the Redis instance shared by the task queue and caches.
type RedisConfig struct {
	URL string
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration.
// Publishing import events is skipped when Enabled is false.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled    bool
	Host       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
	Port       int
}

// YouTubeConfig contains OAuth client settings and API usage limits.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	RequestsPerSecond float64
	Burst             int
	ResponseCacheTTL  time.Duration
	DailyQuota        int
	QuotaThreshold    int
	QuotaEnabled      bool
}

// JobsConfig controls the background task runtime.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type JobsConfig struct {
	Queue           string
	Concurrency     int
	ExecutionBudget time.Duration
	DeadlineMargin  time.Duration
	MaxRetry        int
	UpdateSchedule  string
	InlineTitles    bool
	ShutdownTimeout time.Duration
}

// TitlesConfig controls the title cache.
type TitlesConfig struct {
	TTL time.Duration
}

// MetricsConfig controls the worker's Prometheus listener.
type MetricsConfig struct {
	Port int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from a .env file, config file and environment variables.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the jobs cannot run with.
func (c *Config) Validate() error {
	if c.Jobs.ExecutionBudget <= 0 {
		return fmt.Errorf("jobs.executionbudget must be positive")
	}
	if c.Jobs.DeadlineMargin < 0 || c.Jobs.DeadlineMargin >= c.Jobs.ExecutionBudget {
		return fmt.Errorf("jobs.deadlinemargin must be within the execution budget")
	}
	if c.YouTube.RequestsPerSecond < 0 {
		return fmt.Errorf("youtube.requestspersecond must not be negative")
	}
	return nil
}

// DatabaseURL renders the connection settings as a postgres:// URL.
func (c DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)
	viper.SetDefault("server.apikeys", []string{})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "youtube_sync")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis
	viper.SetDefault("redis.url", "redis://localhost:6379/0")

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "subscriptions.videos")
	viper.SetDefault("rabbitmq.routingkey", "video.imported")

	// YouTube
	viper.SetDefault("youtube.clientid", "")
	viper.SetDefault("youtube.clientsecret", "")
	viper.SetDefault("youtube.redirecturl", "")
	viper.SetDefault("youtube.requestspersecond", 5.0)
	viper.SetDefault("youtube.burst", 5)
	viper.SetDefault("youtube.responsecachettl", 5*time.Minute)
	viper.SetDefault("youtube.dailyquota", 10000)
	viper.SetDefault("youtube.quotathreshold", 90)
	viper.SetDefault("youtube.quotaenabled", true)

	// Jobs
	viper.SetDefault("jobs.queue", "default")
	viper.SetDefault("jobs.concurrency", 10)
	viper.SetDefault("jobs.executionbudget", 10*time.Minute)
	viper.SetDefault("jobs.deadlinemargin", 30*time.Second)
	viper.SetDefault("jobs.maxretry", 0)
	viper.SetDefault("jobs.updateschedule", "@every 1h")
	viper.SetDefault("jobs.inlinetitles", true)
	viper.SetDefault("jobs.shutdowntimeout", 30*time.Second)

	// Titles
	viper.SetDefault("titles.ttl", 28*24*time.Hour)

	// Metrics
	viper.SetDefault("metrics.port", 9090)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
