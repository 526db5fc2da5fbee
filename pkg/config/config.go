package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	AppName   string
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Log           LogConfig
	RateLimit     RateLimitConfig
	Dashboard     DashboardConfig
	Aggregation   AggregationConfig
	Reports       ReportsConfig
	Notifications NotificationsConfig
	Mail          MailConfig
	Realtime      RealtimeConfig
	Kafka         KafkaConfig
	Sentry        SentryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig tunes the per-IP limiter in front of the API.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// AggregationConfig controls the metrics aggregation jobs.
type AggregationConfig struct {
	Enabled         bool
	DailyCron       string
	HourlyCron      string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	AgentWindowDays int
	ClientTopN      int
}

// ReportsConfig configures report execution, storage and schedules.
type ReportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	Timeout           time.Duration
	StatementTimeout  time.Duration
	RetentionCount    int
	FailureThreshold  int
	DispatchInterval  time.Duration
}

// NotificationsConfig configures retries and digest batching.
type NotificationsConfig struct {
	RetryMaxAttempts int
	RetryMinAge      time.Duration
	RetryMaxAge      time.Duration
	RetryInterval    time.Duration
	DigestCron       string
}

// MailConfig holds SMTP transport settings.
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	BaseURL     string
}

// RealtimeConfig configures the pub/sub relay and websocket hub.
type RealtimeConfig struct {
	AppKey        string
	AppSecret     string
	ChannelPrefix string
	SendBuffer    int
}

// KafkaConfig configures the ticket event consumer.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

// SentryConfig enables critical error capture.
type SentryConfig struct {
	DSN string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.AppName = v.GetString("APP_NAME")
	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("ENABLE_RATE_LIMIT"),
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Aggregation = AggregationConfig{
		Enabled:         v.GetBool("ENABLE_AGGREGATION"),
		DailyCron:       v.GetString("AGGREGATION_DAILY_CRON"),
		HourlyCron:      v.GetString("AGGREGATION_HOURLY_CRON"),
		Timeout:         parseDuration(v.GetString("AGGREGATION_TIMEOUT"), 180*time.Second),
		MaxRetries:      v.GetInt("AGGREGATION_MAX_RETRIES"),
		RetryDelay:      parseDuration(v.GetString("AGGREGATION_RETRY_DELAY"), 30*time.Second),
		AgentWindowDays: v.GetInt("AGGREGATION_AGENT_WINDOW_DAYS"),
		ClientTopN:      v.GetInt("AGGREGATION_CLIENT_TOP_N"),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
		Timeout:           parseDuration(v.GetString("REPORTS_TIMEOUT"), 300*time.Second),
		StatementTimeout:  parseDuration(v.GetString("REPORTS_STATEMENT_TIMEOUT"), 120*time.Second),
		RetentionCount:    v.GetInt("REPORTS_RETENTION_COUNT"),
		FailureThreshold:  v.GetInt("REPORTS_FAILURE_THRESHOLD"),
		DispatchInterval:  parseDuration(v.GetString("REPORTS_DISPATCH_INTERVAL"), time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		RetryMaxAttempts: v.GetInt("NOTIFICATIONS_RETRY_MAX_ATTEMPTS"),
		RetryMinAge:      parseDuration(v.GetString("NOTIFICATIONS_RETRY_MIN_AGE"), 5*time.Minute),
		RetryMaxAge:      parseDuration(v.GetString("NOTIFICATIONS_RETRY_MAX_AGE"), 24*time.Hour),
		RetryInterval:    parseDuration(v.GetString("NOTIFICATIONS_RETRY_INTERVAL"), 5*time.Minute),
		DigestCron:       v.GetString("NOTIFICATIONS_DIGEST_CRON"),
	}

	cfg.Mail = MailConfig{
		Host:        v.GetString("MAIL_HOST"),
		Port:        v.GetInt("MAIL_PORT"),
		Username:    v.GetString("MAIL_USERNAME"),
		Password:    v.GetString("MAIL_PASSWORD"),
		FromAddress: v.GetString("MAIL_FROM_ADDRESS"),
		FromName:    v.GetString("MAIL_FROM_NAME"),
		BaseURL:     v.GetString("APP_BASE_URL"),
	}

	cfg.Realtime = RealtimeConfig{
		AppKey:        v.GetString("REALTIME_APP_KEY"),
		AppSecret:     v.GetString("REALTIME_APP_SECRET"),
		ChannelPrefix: v.GetString("REALTIME_CHANNEL_PREFIX"),
		SendBuffer:    v.GetInt("REALTIME_SEND_BUFFER"),
	}

	cfg.Kafka = KafkaConfig{
		Enabled: v.GetBool("ENABLE_KAFKA_EVENTS"),
		Brokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:   v.GetString("KAFKA_TICKET_EVENTS_TOPIC"),
		GroupID: v.GetString("KAFKA_GROUP_ID"),
	}

	cfg.Sentry = SentryConfig{DSN: v.GetString("SENTRY_DSN")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "aidly-api")
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "aidly")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_AGGREGATION", true)
	v.SetDefault("AGGREGATION_DAILY_CRON", "30 0 * * *")
	v.SetDefault("AGGREGATION_HOURLY_CRON", "5 * * * *")
	v.SetDefault("AGGREGATION_TIMEOUT", "180s")
	v.SetDefault("AGGREGATION_MAX_RETRIES", 3)
	v.SetDefault("AGGREGATION_RETRY_DELAY", "30s")
	v.SetDefault("AGGREGATION_AGENT_WINDOW_DAYS", 30)
	v.SetDefault("AGGREGATION_CLIENT_TOP_N", 100)

	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 2)
	v.SetDefault("REPORTS_WORKER_RETRIES", 1)
	v.SetDefault("REPORTS_TIMEOUT", "300s")
	v.SetDefault("REPORTS_STATEMENT_TIMEOUT", "120s")
	v.SetDefault("REPORTS_RETENTION_COUNT", 30)
	v.SetDefault("REPORTS_FAILURE_THRESHOLD", 5)
	v.SetDefault("REPORTS_DISPATCH_INTERVAL", "1m")

	v.SetDefault("NOTIFICATIONS_RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_MIN_AGE", "5m")
	v.SetDefault("NOTIFICATIONS_RETRY_MAX_AGE", "24h")
	v.SetDefault("NOTIFICATIONS_RETRY_INTERVAL", "5m")
	v.SetDefault("NOTIFICATIONS_DIGEST_CRON", "0 * * * *")

	v.SetDefault("MAIL_HOST", "localhost")
	v.SetDefault("MAIL_PORT", 1025)
	v.SetDefault("MAIL_USERNAME", "")
	v.SetDefault("MAIL_PASSWORD", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "support@aidly.local")
	v.SetDefault("MAIL_FROM_NAME", "AidlY Support")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")

	v.SetDefault("REALTIME_APP_KEY", "aidly")
	v.SetDefault("REALTIME_APP_SECRET", "dev_realtime_secret")
	v.SetDefault("REALTIME_CHANNEL_PREFIX", "aidly:realtime")
	v.SetDefault("REALTIME_SEND_BUFFER", 64)

	v.SetDefault("ENABLE_KAFKA_EVENTS", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TICKET_EVENTS_TOPIC", "ticket-events")
	v.SetDefault("KAFKA_GROUP_ID", "aidly-notifications")

	v.SetDefault("SENTRY_DSN", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
