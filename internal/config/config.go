package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Kafka    KafkaConfig
	Twilio   TwilioConfig
	Workers  WorkersConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// KafkaConfig holds Kafka/event streaming configuration
type KafkaConfig struct {
	Brokers       string
	Topic         string
	ConsumerGroup string
}

// TwilioConfig holds the Twilio WhatsApp sender credentials
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// WorkersConfig holds background worker tuning knobs
type WorkersConfig struct {
	WebhookWorkers        int // workers draining the webhook event topic
	RetrySweepSeconds     int // webhook retry sweep interval
	SchedulerSweepSeconds int // scheduled-broadcast sweep interval
	DispatchBatchSize     int // queued recipients fetched per dispatch pass
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	WebAppOrigin string
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	if cfg.Kafka.Brokers, err = requireEnv("KAFKA_BROKERS"); err != nil {
		return nil, err
	}
	cfg.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", "webhook-events")
	cfg.Kafka.ConsumerGroup = getEnvWithDefault("KAFKA_CONSUMER_GROUP", "webhook-consumers")

	// Twilio credentials are only needed by the dispatcher binary, but the
	// sender is constructed at bootstrap so they are required everywhere.
	if cfg.Twilio.AccountSID, err = requireEnv("TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if cfg.Twilio.AuthToken, err = requireEnv("TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Twilio.FromNumber, err = requireEnv("TWILIO_WHATSAPP_FROM"); err != nil {
		return nil, err
	}

	if cfg.Workers.WebhookWorkers, err = intEnvWithDefault("WEBHOOK_WORKERS", 10); err != nil {
		return nil, err
	}
	if cfg.Workers.RetrySweepSeconds, err = intEnvWithDefault("WEBHOOK_RETRY_SWEEP_SECONDS", 30); err != nil {
		return nil, err
	}
	if cfg.Workers.SchedulerSweepSeconds, err = intEnvWithDefault("BROADCAST_SCHEDULER_SWEEP_SECONDS", 30); err != nil {
		return nil, err
	}
	if cfg.Workers.DispatchBatchSize, err = intEnvWithDefault("DISPATCH_BATCH_SIZE", 50); err != nil {
		return nil, err
	}

	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	cfg.Server.WebAppOrigin = getEnvWithDefault("WEBAPP_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func intEnvWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}
