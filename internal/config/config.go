package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zerotocryptodev/gateway/internal/ratelimit"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Environment  string `mapstructure:"environment"`
	SecureCookie bool   `mapstructure:"secure_cookie"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

// PolicyConfig mirrors ratelimit.Policy with a millisecond window so it can be
// written in JSON or env vars.
type PolicyConfig struct {
	MaxRequests int `mapstructure:"max_requests"`
	WindowMs    int `mapstructure:"window_ms"`
}

type RateLimitConfig struct {
	Backend     string                  `mapstructure:"backend"` // "memory" or "redis"
	MaxEntries  int                     `mapstructure:"max_entries"`
	AuditBuffer int                     `mapstructure:"audit_buffer"`
	Policies    map[string]PolicyConfig `mapstructure:"policies"`
}

type FeaturesConfig struct {
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	PersistTTL         time.Duration `mapstructure:"persist_ttl"`
	CacheKey           string        `mapstructure:"cache_key"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

type AdminConfig struct {
	Emails []string `mapstructure:"emails"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the JSON config file at path (optional) and overlays GATEWAY_*
// environment variables, e.g. GATEWAY_REDIS_HOST or GATEWAY_FEATURES_CACHE_TTL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.secure_cookie", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=gateway port=5432 sslmode=disable")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("rate_limit.backend", ratelimit.BackendMemory)
	v.SetDefault("rate_limit.max_entries", ratelimit.DefaultMaxEntries)
	v.SetDefault("rate_limit.audit_buffer", 1000)

	v.SetDefault("features.cache_ttl", "5m")
	v.SetDefault("features.persist_ttl", "24h")
	v.SetDefault("features.cache_key", "features:snapshot")
	v.SetDefault("features.fetch_timeout", "10s")
	v.SetDefault("features.breaker_max_failures", 5)
	v.SetDefault("features.breaker_timeout", "30s")

	v.SetDefault("admin.emails", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch c.RateLimit.Backend {
	case ratelimit.BackendMemory, ratelimit.BackendRedis:
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.MaxEntries <= 0 {
		return errors.New("rate_limit.max_entries must be positive")
	}
	if c.RateLimit.AuditBuffer <= 0 {
		return errors.New("rate_limit.audit_buffer must be positive")
	}
	if _, err := c.RateLimit.PolicyOverrides(); err != nil {
		return err
	}

	if c.Features.CacheTTL <= 0 {
		return errors.New("features.cache_ttl must be positive")
	}
	if c.Features.PersistTTL < c.Features.CacheTTL {
		return errors.New("features.persist_ttl must not be shorter than features.cache_ttl")
	}
	if c.Features.FetchTimeout <= 0 {
		return errors.New("features.fetch_timeout must be positive")
	}
	if c.Features.BreakerMaxFailures <= 0 || c.Features.BreakerTimeout <= 0 {
		return errors.New("features breaker settings must be positive")
	}

	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.JWT.ExpiryHours <= 0 {
		return errors.New("jwt.expiry_hours must be positive")
	}

	return nil
}

// PolicyOverrides converts the configured policies, rejecting non-positive
// values the same way the limiter would.
func (r RateLimitConfig) PolicyOverrides() (map[string]ratelimit.Policy, error) {
	out := make(map[string]ratelimit.Policy, len(r.Policies))
	for name, p := range r.Policies {
		policy := ratelimit.Policy{
			MaxRequests: p.MaxRequests,
			Window:      time.Duration(p.WindowMs) * time.Millisecond,
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("rate_limit.policies.%s: %w", name, err)
		}
		out[name] = policy
	}
	return out, nil
}

// IsAdminEmail reports whether email is on the admin allow-list.
func (a AdminConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range a.Emails {
		if strings.ToLower(strings.TrimSpace(admin)) == email {
			return true
		}
	}
	return false
}
