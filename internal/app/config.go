package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/vantage-backend/internal/data/db"
	"github.com/yungbote/vantage-backend/internal/platform/envutil"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime/bus"
)

const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"

	RealtimeBusRedis = "redis"
	RealtimeBusLocal = "local"
)

type Config struct {
	LogMode  string
	HTTPAddr string

	DB db.Options

	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RealtimeBus  string
	RedisChannel string

	EffectTimeout  time.Duration
	EffectMaxTries int
	EffectsAsync   bool

	AllowedOrigins []string
	MetricsEnabled bool

	OtelEnabled     bool
	OtelEndpoint    string
	OtelHeaders     string
	OtelInsecure    bool
	OtelSampleRatio float64
	Environment     string
}

// source resolves a key from the environment first and then from the
// optional CONFIG_FILE overlay.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if envutil.Set(key) {
		return strings.TrimSpace(os.Getenv(key)), true
	}
	v, ok := s.file[key]
	return v, ok && v != ""
}

func (s source) String(key, def string) string {
	if envutil.Set(key) {
		return envutil.String(key, def)
	}
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s source) Int(key string, def int) int {
	if envutil.Set(key) {
		return envutil.Int(key, def)
	}
	if v, ok := s.lookup(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) Bool(key string, def bool) bool {
	if envutil.Set(key) {
		return envutil.Bool(key, def)
	}
	if v, ok := s.lookup(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func (s source) Duration(key string, def time.Duration) time.Duration {
	if envutil.Set(key) {
		return envutil.Duration(key, def)
	}
	if v, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func (s source) Float(key string, def float64) float64 {
	if v, ok := s.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// LoadConfig reads the process configuration. Environment variables win over
// keys in the YAML file named by CONFIG_FILE.
func LoadConfig(log *logger.Logger) (Config, error) {
	src := source{}
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		file, err := readConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
		log.Info("Loaded config file", "path", path, "keys", len(file))
	}

	cfg := Config{
		LogMode:  src.String("LOG_MODE", "development"),
		HTTPAddr: src.String("HTTP_ADDR", ":8080"),
		DB: db.Options{
			Driver:           strings.ToLower(src.String("DB_DRIVER", db.DriverPostgres)),
			PostgresHost:     src.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     src.String("POSTGRES_PORT", "5432"),
			PostgresUser:     src.String("POSTGRES_USER", "postgres"),
			PostgresPassword: src.String("POSTGRES_PASSWORD", ""),
			PostgresName:     src.String("POSTGRES_NAME", "vantage"),
			SQLitePath:       src.String("SQLITE_PATH", "vantage.db"),
		},
		CacheBackend:    strings.ToLower(src.String("CACHE_BACKEND", CacheBackendRedis)),
		RedisAddr:       src.String("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   src.String("REDIS_PASSWORD", ""),
		RedisDB:         src.Int("REDIS_DB", 0),
		RealtimeBus:     strings.ToLower(src.String("REALTIME_BUS", RealtimeBusRedis)),
		RedisChannel:    src.String("REDIS_CHANNEL", bus.DefaultChannel),
		EffectTimeout:   src.Duration("EFFECT_TIMEOUT", 2*time.Second),
		EffectMaxTries:  src.Int("EFFECT_MAX_TRIES", 3),
		EffectsAsync:    src.Bool("EFFECTS_ASYNC", true),
		AllowedOrigins:  splitList(src.String("CORS_ALLOWED_ORIGINS", "")),
		MetricsEnabled:  src.Bool("METRICS_ENABLED", false),
		OtelEnabled:     src.Bool("OTEL_ENABLED", false),
		OtelEndpoint:    src.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelHeaders:     src.String("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OtelInsecure:    src.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		OtelSampleRatio: src.Float("OTEL_SAMPLER_RATIO", 0.1),
		Environment:     src.String("ENVIRONMENT", "development"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.CacheBackend {
	case CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}
	switch c.RealtimeBus {
	case RealtimeBusRedis, RealtimeBusLocal:
	default:
		return fmt.Errorf("unsupported REALTIME_BUS %q", c.RealtimeBus)
	}
	if c.EffectMaxTries < 1 {
		return fmt.Errorf("EFFECT_MAX_TRIES must be at least 1, got %d", c.EffectMaxTries)
	}
	return nil
}

func readConfigFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
