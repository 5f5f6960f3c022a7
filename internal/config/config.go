package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	LiveKit     LiveKitConfig
	Kafka       KafkaConfig
	Chat        ChatConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Tracing     TracingConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	InstanceID     string
}

// DatabaseConfig - пустой DSN означает хранение в памяти
type DatabaseConfig struct {
	DSN             string
	MaxConnections  int
	MaxIdleTime     time.Duration
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	AutoMigrate     bool
}

// RedisConfig - пустой Addr означает presence/typing/event log в памяти
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RelayChannel string
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
	Timeout   time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ChatConfig struct {
	PresenceTTL       time.Duration
	TypingTTL         time.Duration
	MaxMessageLength  int
	HistoryLimit      int
	SweepInterval     time.Duration
	PresenceHeartbeat time.Duration
	EventLogSize      int
	IdempotencyTTL    time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Required  bool
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type TracingConfig struct {
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// Загрузка .env файла (если существует)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 10*time.Second),
			InstanceID:     getEnv("INSTANCE_ID", ""),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", ""),
			MaxConnections:  getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdleTime:     getEnvAsDuration("DATABASE_MAX_IDLE_TIME", 5*time.Minute),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 1*time.Hour),
			ConnectTimeout:  getEnvAsDuration("DATABASE_CONNECT_TIMEOUT", 5*time.Second),
			AutoMigrate:     getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 2*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 2*time.Second),
			RelayChannel: getEnv("REDIS_RELAY_CHANNEL", "roomsync:events"),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", "ws://localhost:7880"),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
			TokenTTL:  getEnvAsDuration("LIVEKIT_TOKEN_TTL", 24*time.Hour),
			Timeout:   getEnvAsDuration("LIVEKIT_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "room-messages"),
		},
		Chat: ChatConfig{
			PresenceTTL:       getEnvAsDuration("PRESENCE_TTL", 5*time.Minute),
			TypingTTL:         getEnvAsDuration("TYPING_TTL", 5*time.Second),
			MaxMessageLength:  getEnvAsInt("MAX_MESSAGE_LENGTH", 500),
			HistoryLimit:      getEnvAsInt("HISTORY_LIMIT", 50),
			SweepInterval:     getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", 30*time.Second),
			PresenceHeartbeat: getEnvAsDuration("PRESENCE_HEARTBEAT", time.Minute),
			EventLogSize:      getEnvAsInt("EVENT_LOG_SIZE", 500),
			IdempotencyTTL:    getEnvAsDuration("IDEMPOTENCY_TTL", 10*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Required:  getEnvAsBool("AUTH_REQUIRED", false),
		},
		RateLimit: RateLimitConfig{
			Limit:  getEnvAsInt("RATE_LIMIT", 100),
			Window: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "roomsync"),
			SampleRatio: getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Mode - режим хранения, отдается в /health
func (c *Config) Mode() string {
	switch {
	case c.Database.DSN != "" && c.Redis.Addr != "":
		return "postgres+redis"
	case c.Database.DSN != "":
		return "postgres"
	case c.Redis.Addr != "":
		return "memory+redis"
	default:
		return "memory"
	}
}

func (c *Config) validate() error {
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set when AUTH_REQUIRED is enabled")
	}
	if c.Chat.PresenceTTL <= 0 || c.Chat.TypingTTL <= 0 {
		return fmt.Errorf("presence and typing TTL must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be within [0, 1]")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
