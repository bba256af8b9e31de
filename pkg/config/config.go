package config

import (
	"errors"
	"io/fs"
	"strconv"
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
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Scheduler     SchedulerConfig
	Search        SearchConfig
	Notifications NotificationConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how bearer tokens issued by the auth service are verified.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig controls the background sweeps.
type SchedulerConfig struct {
	Enabled              bool
	Timezone             string
	GenerationCron       string
	DailyDSTCron         string
	HourlyDSTCron        string
	DSTHeavyMonths       []time.Month
	DefaultHorizonMonths int
	LeaseEnabled         bool
	LeaseTTL             time.Duration
}

// SearchConfig bounds teacher search fan-out.
type SearchConfig struct {
	TeacherTimeout time.Duration
	Concurrency    int
	MaxDays        int
}

// NotificationConfig tunes the notification dispatch queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	horizon := v.GetInt("DEFAULT_HORIZON_MONTHS")
	if horizon <= 0 {
		horizon = 2
	}
	cfg.Scheduler = SchedulerConfig{
		Enabled:              v.GetBool("ENABLE_SCHEDULER"),
		Timezone:             v.GetString("SCHEDULER_TIMEZONE"),
		GenerationCron:       v.GetString("GENERATION_CRON"),
		DailyDSTCron:         v.GetString("DAILY_DST_CRON"),
		HourlyDSTCron:        v.GetString("HOURLY_DST_CRON"),
		DSTHeavyMonths:       parseMonths(v.GetString("DST_HEAVY_MONTHS")),
		DefaultHorizonMonths: horizon,
		LeaseEnabled:         v.GetBool("ENABLE_GENERATION_LEASE"),
		LeaseTTL:             parseDuration(v.GetString("GENERATION_LEASE_TTL"), 5*time.Minute),
	}

	cfg.Search = SearchConfig{
		TeacherTimeout: parseDuration(v.GetString("SEARCH_TEACHER_TIMEOUT"), 3*time.Second),
		Concurrency:    v.GetInt("SEARCH_CONCURRENCY"),
		MaxDays:        v.GetInt("SEARCH_MAX_DAYS"),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFY_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutor_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	v.SetDefault("GENERATION_CRON", "15 2 * * *")
	v.SetDefault("DAILY_DST_CRON", "0 3 * * *")
	v.SetDefault("HOURLY_DST_CRON", "5 * * * *")
	v.SetDefault("DST_HEAVY_MONTHS", "3,4,9,10,11")
	v.SetDefault("DEFAULT_HORIZON_MONTHS", 2)
	v.SetDefault("ENABLE_GENERATION_LEASE", false)
	v.SetDefault("GENERATION_LEASE_TTL", "5m")

	v.SetDefault("SEARCH_TEACHER_TIMEOUT", "3s")
	v.SetDefault("SEARCH_CONCURRENCY", 8)
	v.SetDefault("SEARCH_MAX_DAYS", 31)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 256)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")
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

func parseMonths(raw string) []time.Month {
	var months []time.Month
	for _, part := range splitAndTrim(raw) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 12 {
			continue
		}
		months = append(months, time.Month(n))
	}
	return months
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
