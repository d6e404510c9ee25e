package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvAppliesDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"DB_DSN":          "postgres://localhost/alerts",
		"TASK_SOURCE_URL": "http://tasks.local",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9191", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, "logs", cfg.Logging.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.TaskSource.Timeout)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 20, cfg.Telegram.RateLimit)
	assert.False(t, cfg.KafkaEnabled())
}

func TestFromEnvReportsMissingKeys(t *testing.T) {
	_, err := FromEnv(envOf(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "TASK_SOURCE_URL")
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	base := map[string]string{
		"DB_DSN":          "postgres://localhost/alerts",
		"TASK_SOURCE_URL": "http://tasks.local",
	}

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "timeout not a duration", key: "TASK_SOURCE_TIMEOUT", value: "soon"},
		{name: "negative timeout", key: "TASK_SOURCE_TIMEOUT", value: "-1s"},
		{name: "unknown timezone", key: "SCHEDULER_TIMEZONE", value: "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range base {
				env[k] = v
			}
			env[tt.key] = tt.value
			_, err := FromEnv(envOf(env))
			assert.Error(t, err)
		})
	}
}

func TestFromEnvKafka(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"DB_DSN":            "postgres://localhost/alerts",
		"TASK_SOURCE_URL":   "http://tasks.local",
		"KAFKA_BROKER":      "kafka:9092",
		"KAFKA_ALERT_TOPIC": "alerts.custom",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "alerts.custom", cfg.Kafka.AlertTopic)
	assert.Equal(t, "alert-schedule.changed", cfg.Kafka.ConfigTopic)
}
