// Package config loads the service settings from the environment.
//
// Values are read from process environment variables, optionally seeded from
// a .env file. Variables already present in the environment win over the
// file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when Load is called without explicit files.
const DefaultEnvFile = ".env"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	OpenAI    OpenAIConfig
	Auth      AuthConfig
	Cache     CacheConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig

	FactoryLocation     string `env:"FACTORY_LOCATION,default=Unspecified"`
	UsageReportSchedule string `env:"USAGE_REPORT_SCHEDULE,default=@every 1m"`
	AuditLogPath        string `env:"AUDIT_LOG_PATH"`
}

type ServerConfig struct {
	Host               string        `env:"HOST,default=0.0.0.0"`
	Port               int           `env:"PORT,default=8000"`
	ReadTimeout        time.Duration `env:"SERVER_READ_TIMEOUT,default=30s"`
	WriteTimeout       time.Duration `env:"SERVER_WRITE_TIMEOUT,default=60s"`
	ShutdownTimeout    time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=30s"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL,default=sqlite://./factory.db"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE,default=true"`
}

type OpenAIConfig struct {
	APIKey      string  `env:"OPENAI_API_KEY"`
	Model       string  `env:"OPENAI_MODEL,default=gpt-4o"`
	BaseURL     string  `env:"OPENAI_BASE_URL"`
	Temperature float64 `env:"OPENAI_TEMPERATURE,default=0.7"`
}

type AuthConfig struct {
	AdminUsername     string        `env:"ADMIN_USERNAME,default=admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string        `env:"JWT_SECRET"`
	TokenTTL          time.Duration `env:"TOKEN_TTL,default=24h"`
	Required          bool          `env:"AUTH_REQUIRED,default=false"`
}

type CacheConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration `env:"CACHE_TTL,default=5m"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

type RateLimitConfig struct {
	AIRequestsPerSecond int `env:"AI_RATE_LIMIT,default=5"`
	AIBurst             int `env:"AI_RATE_BURST,default=10"`
}

// Load reads the configuration. Missing env files are ignored; malformed
// files and values are errors.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := checkValues(reflect.TypeOf(cfg)); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// checkValues reports set variables that do not parse as the type of the
// field they feed. envdecode leaves such fields at their zero value.
func checkValues(t reflect.Type) error {
	var errs []error
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct {
			errs = append(errs, checkValues(field.Type))
			continue
		}
		tag, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}
		name := strings.Split(tag, ",")[0]
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		if err := parseAs(field.Type, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", name, raw, err))
		}
	}
	return errors.Join(errs...)
}

func parseAs(t reflect.Type, raw string) error {
	var err error
	switch {
	case t == durationType:
		_, err = time.ParseDuration(raw)
	case t.Kind() == reflect.Bool:
		_, err = strconv.ParseBool(raw)
	case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
		_, err = strconv.ParseInt(raw, 0, t.Bits())
	case t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uint64:
		_, err = strconv.ParseUint(raw, 0, t.Bits())
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		_, err = strconv.ParseFloat(raw, t.Bits())
	}
	return err
}

// Validate checks values that cannot be expressed as tags.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE %.2f out of range [0,2]", c.OpenAI.Temperature)
	}
	if c.RateLimit.AIRequestsPerSecond < 0 || c.RateLimit.AIBurst < 0 {
		return errors.New("AI rate limit values must not be negative")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, part := range strings.Split(c.Server.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AIEnabled reports whether a real AI provider key is configured.
func (c *Config) AIEnabled() bool {
	return strings.TrimSpace(c.OpenAI.APIKey) != ""
}
