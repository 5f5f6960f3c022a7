package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Chat.PresenceTTL)
	assert.Equal(t, 5*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, 500, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 24*time.Hour, cfg.LiveKit.TokenTTL)
	assert.Equal(t, "memory", cfg.Mode())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://u:p@db:5432/chat")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PRESENCE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Chat.PresenceTTL)
	assert.Equal(t, "postgres+redis", cfg.Mode())
}

func TestLoadRequiresSecretWhenAuthRequired(t *testing.T) {
	t.Setenv("AUTH_REQUIRED", "true")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
