package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	TaskSource struct {
		URL     string
		Token   string
		Timeout time.Duration
	}
	Scheduler struct {
		Timezone string
	}
	Telegram struct {
		BotToken  string
		RateLimit int
	}
	Kafka struct {
		Broker      string
		AlertTopic  string
		ConfigTopic string
		GroupID     string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var cfg Config

	cfg.DB.DSN = getenv("DB_DSN")

	cfg.API.Port = getenv("API_PORT")
	cfg.API.BasePath = getenv("API_BASE_PATH")

	cfg.Logging.Dir = getenv("LOG_DIR")
	cfg.Logging.Level = getenv("LOG_LEVEL")

	cfg.TaskSource.URL = getenv("TASK_SOURCE_URL")
	cfg.TaskSource.Token = getenv("TASK_SOURCE_TOKEN")
	if raw := getenv("TASK_SOURCE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid TASK_SOURCE_TIMEOUT %q", raw)
		}
		cfg.TaskSource.Timeout = d
	}

	cfg.Scheduler.Timezone = getenv("SCHEDULER_TIMEZONE")
	if cfg.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			return Config{}, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", cfg.Scheduler.Timezone, err)
		}
	}

	cfg.Telegram.BotToken = getenv("TELEGRAM_BOT_TOKEN")
	if rl, err := strconv.Atoi(getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.Telegram.RateLimit = rl
	}

	cfg.Kafka.Broker = getenv("KAFKA_BROKER")
	cfg.Kafka.AlertTopic = getenv("KAFKA_ALERT_TOPIC")
	cfg.Kafka.ConfigTopic = getenv("KAFKA_CONFIG_TOPIC")
	cfg.Kafka.GroupID = getenv("KAFKA_GROUP_ID")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.TaskSource.URL == "" {
		missing = append(missing, "TASK_SOURCE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":9191"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.TaskSource.Timeout == 0 {
		cfg.TaskSource.Timeout = 30 * time.Second
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Telegram.RateLimit <= 0 {
		cfg.Telegram.RateLimit = 20
	}
	if cfg.Kafka.AlertTopic == "" {
		cfg.Kafka.AlertTopic = "project.alerts"
	}
	if cfg.Kafka.ConfigTopic == "" {
		cfg.Kafka.ConfigTopic = "alert-schedule.changed"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "project-alert-service"
	}

	return cfg, nil
}

// KafkaEnabled reports whether a broker is configured.
func (c Config) KafkaEnabled() bool {
	return c.Kafka.Broker != ""
}
