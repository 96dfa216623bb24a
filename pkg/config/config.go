package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Allocation policies understood by the room allocator.
const (
	PolicyBestFit         = "best_fit"
	PolicyFirstDescending = "first_descending"
)

var periodSuffixPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Allocator AllocatorConfig
	Imports   ImportConfig
	Messaging MessagingConfig
	Periods   []PeriodConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	RunMigrations bool
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

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

// CacheConfig toggles Redis backed caching.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AllocatorConfig governs the room assignment pass.
type AllocatorConfig struct {
	Policy         string
	ShiftPartition bool
	AtomicReplace  bool
	ListCacheTTL   time.Duration
}

// ImportConfig governs duplicate reconciliation of imported batches.
type ImportConfig struct {
	BatchTTL        time.Duration
	DuplicateSuffix string
}

// MessagingConfig points at the broker receiving assignment events. Empty URL disables publishing.
type MessagingConfig struct {
	AMQPURL    string
	Queue      string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// PeriodConfig describes one academic period and the table suffix of its dataset.
type PeriodConfig struct {
	ID     string
	Label  string
	Suffix string
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		RunMigrations: v.GetBool("RUN_MIGRATIONS"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
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

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	cfg.Allocator = AllocatorConfig{
		Policy:         strings.ToLower(strings.TrimSpace(v.GetString("ALLOCATOR_POLICY"))),
		ShiftPartition: v.GetBool("ALLOCATOR_SHIFT_PARTITION"),
		AtomicReplace:  v.GetBool("ALLOCATOR_ATOMIC_REPLACE"),
		ListCacheTTL:   parseDuration(v.GetString("ALLOCATOR_LIST_CACHE_TTL"), 5*time.Minute),
	}
	if cfg.Allocator.Policy != PolicyBestFit && cfg.Allocator.Policy != PolicyFirstDescending {
		return nil, fmt.Errorf("unsupported ALLOCATOR_POLICY %q", cfg.Allocator.Policy)
	}

	cfg.Imports = ImportConfig{
		BatchTTL:        parseDuration(v.GetString("IMPORT_BATCH_TTL"), 30*time.Minute),
		DuplicateSuffix: v.GetString("IMPORT_DUPLICATE_SUFFIX"),
	}

	cfg.Messaging = MessagingConfig{
		AMQPURL:    v.GetString("AMQP_URL"),
		Queue:      v.GetString("AMQP_QUEUE"),
		Workers:    v.GetInt("AMQP_WORKERS"),
		MaxRetries: v.GetInt("AMQP_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("AMQP_RETRY_DELAY"), 2*time.Second),
	}

	periods, err := parsePeriods(v.GetString("PERIODS"))
	if err != nil {
		return nil, err
	}
	cfg.Periods = periods

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
	v.SetDefault("DB_NAME", "room_assignment")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("RUN_MIGRATIONS", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("ALLOCATOR_POLICY", PolicyBestFit)
	v.SetDefault("ALLOCATOR_SHIFT_PARTITION", false)
	v.SetDefault("ALLOCATOR_ATOMIC_REPLACE", true)
	v.SetDefault("ALLOCATOR_LIST_CACHE_TTL", "5m")

	v.SetDefault("IMPORT_BATCH_TTL", "30m")
	v.SetDefault("IMPORT_DUPLICATE_SUFFIX", " (imported)")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_QUEUE", "room_assignment.events")
	v.SetDefault("AMQP_WORKERS", 2)
	v.SetDefault("AMQP_MAX_RETRIES", 3)
	v.SetDefault("AMQP_RETRY_DELAY", "2s")

	v.SetDefault("PERIODS", "current:Current period:current")
}

// parsePeriods reads the scope descriptor table formatted as "id:label:suffix,...".
func parsePeriods(raw string) ([]PeriodConfig, error) {
	entries := splitAndTrim(raw)
	if len(entries) == 0 {
		return nil, errors.New("PERIODS must declare at least one period")
	}
	seen := make(map[string]bool, len(entries))
	periods := make([]PeriodConfig, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid PERIODS entry %q: expected id:label:suffix", entry)
		}
		period := PeriodConfig{
			ID:     strings.TrimSpace(parts[0]),
			Label:  strings.TrimSpace(parts[1]),
			Suffix: strings.TrimSpace(parts[2]),
		}
		if period.ID == "" {
			return nil, fmt.Errorf("invalid PERIODS entry %q: empty id", entry)
		}
		if !periodSuffixPattern.MatchString(period.Suffix) {
			return nil, fmt.Errorf("invalid PERIODS entry %q: suffix must match %s", entry, periodSuffixPattern)
		}
		if seen[period.ID] {
			return nil, fmt.Errorf("duplicate period id %q", period.ID)
		}
		seen[period.ID] = true
		periods = append(periods, period)
	}
	return periods, nil
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
