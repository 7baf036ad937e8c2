package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	StorageBackend string `validate:"oneof=memory file redis sqlite postgres"`
	StorageKey     string `validate:"required"`
	StoragePath    string `validate:"required_if=StorageBackend file"`
	RedisAddr      string `validate:"required_if=StorageBackend redis"`
	RedisPassword  string
	RedisDB        int    `validate:"gte=0"`
	SQLitePath     string `validate:"required_if=StorageBackend sqlite"`
	DatabaseURL    string `validate:"required_if=StorageBackend postgres"`

	SeedDays   int `validate:"gte=0"`
	SeedRandom int64

	CacheInvalidation string `validate:"oneof=structured substring"`
	CacheWarmOnStart  bool

	LearningEnabled                bool
	LearningInterval               time.Duration `validate:"gt=0"`
	LearningMaterializeProbability float64       `validate:"gte=0,lte=1"`
	LearningBatchSize              int           `validate:"gte=1"`

	FeedKind             string `validate:"oneof=simulated gtfsrt nats"`
	GTFSRTTripUpdatesURL string `validate:"required_if=FeedKind gtfsrt"`
	GTFSRTAlertsURL      string `validate:"omitempty,url"`
	GTFSRTTransport      string `validate:"oneof=road train bus"`
	FeedDelayThreshold   time.Duration
	NATSURL              string `validate:"required_if=FeedKind nats"`
	NATSSubject          string `validate:"required_if=FeedKind nats"`

	WeatherEnabled   bool
	WeatherBaseURL   string `validate:"omitempty,url"`
	GeocodingBaseURL string `validate:"omitempty,url"`
	WeatherCountry   string
	LookupTimeout    time.Duration `validate:"gt=0"`
	EventsFile       string

	RateLimitPerWindow int           `validate:"gte=1"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string
	CORSAllowedOrigins []string

	MetricsEnabled bool
}

var validate = validator.New()

// Load reads .env (if present), then the YAML file named by CONFIG_FILE, then the process
// environment. Environment values win over file values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		LogLevel:        src.getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        src.getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     src.getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    src.getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: src.getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		StorageBackend: strings.ToLower(src.getEnv("STORAGE_BACKEND", "file")),
		StorageKey:     src.getEnv("STORAGE_KEY", "transport_historical_incidents"),
		StoragePath:    src.getEnv("STORAGE_PATH", "./data"),
		RedisAddr:      src.getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  src.getEnv("REDIS_PASSWORD", ""),
		RedisDB:        src.getIntEnv("REDIS_DB", 0),
		SQLitePath:     src.getEnv("SQLITE_PATH", "./data/transitrisk.db"),
		DatabaseURL:    src.getEnv("DATABASE_URL", ""),

		SeedDays:   src.getIntEnv("SEED_DAYS", 90),
		SeedRandom: src.getInt64Env("SEED_RANDOM", 0),

		CacheInvalidation: strings.ToLower(src.getEnv("CACHE_INVALIDATION", "structured")),
		CacheWarmOnStart:  src.getBoolEnv("CACHE_WARM_ON_START", true),

		LearningEnabled:                src.getBoolEnv("LEARNING_ENABLED", true),
		LearningInterval:               src.getDurationEnv("LEARNING_INTERVAL", time.Hour),
		LearningMaterializeProbability: src.getFloatEnv("LEARNING_MATERIALIZE_PROBABILITY", 0.3),
		LearningBatchSize:              src.getIntEnv("LEARNING_BATCH_SIZE", 3),

		FeedKind:             strings.ToLower(src.getEnv("FEED_KIND", "simulated")),
		GTFSRTTripUpdatesURL: src.getEnv("GTFSRT_TRIP_UPDATES_URL", ""),
		GTFSRTAlertsURL:      src.getEnv("GTFSRT_ALERTS_URL", ""),
		GTFSRTTransport:      strings.ToLower(src.getEnv("GTFSRT_TRANSPORT", "train")),
		FeedDelayThreshold:   src.getDurationEnv("FEED_DELAY_THRESHOLD", 5*time.Minute),
		NATSURL:              src.getEnv("NATS_URL", ""),
		NATSSubject:          src.getEnv("NATS_SUBJECT", "transitrisk.delays"),

		WeatherEnabled:   src.getBoolEnv("WEATHER_ENABLED", false),
		WeatherBaseURL:   src.getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		GeocodingBaseURL: src.getEnv("GEOCODING_BASE_URL", "https://geocoding-api.open-meteo.com/v1/search"),
		WeatherCountry:   src.getEnv("WEATHER_COUNTRY", "PL"),
		LookupTimeout:    src.getDurationEnv("LOOKUP_TIMEOUT", 3*time.Second),
		EventsFile:       src.getEnv("EVENTS_FILE", ""),

		RateLimitPerWindow: src.getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    src.getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: src.getCSVEnv("RATE_LIMIT_WHITELIST"),
		CORSAllowedOrigins: src.getCSVEnv("CORS_ALLOWED_ORIGINS"),

		MetricsEnabled: src.getBoolEnv("METRICS_ENABLED", true),
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readFile accepts a flat mapping of the same keys as the environment, e.g. "HTTP_ADDR: :9090".
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			values[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			values[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return values, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) getEnv(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func (s source) getIntEnv(key string, defaultVal int) int {
	if v := s.lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func (s source) getInt64Env(key string, defaultVal int64) int64 {
	if v := s.lookup(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func (s source) getFloatEnv(key string, defaultVal float64) float64 {
	if v := s.lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func (s source) getBoolEnv(key string, defaultVal bool) bool {
	if v := s.lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func (s source) getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func (s source) getCSVEnv(key string) []string {
	v := strings.TrimSpace(s.lookup(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
