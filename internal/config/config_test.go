package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotocryptodev/gateway/internal/ratelimit"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ratelimit.BackendMemory, cfg.RateLimit.Backend)
	assert.Equal(t, ratelimit.DefaultMaxEntries, cfg.RateLimit.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Features.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Features.PersistTTL)
	assert.Equal(t, "features:snapshot", cfg.Features.CacheKey)
	assert.Equal(t, 10*time.Second, cfg.Features.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Features.BreakerTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": "9090"},
		"jwt": {"secret": "from-file"},
		"rate_limit": {
			"policies": {
				"auth": {"max_requests": 3, "window_ms": 30000}
			}
		},
		"features": {"cache_ttl": "1m"},
		"admin": {"emails": ["Ops@Example.com"]}
	}`), 0o600))

	t.Setenv("GATEWAY_RATE_LIMIT_BACKEND", "redis")
	t.Setenv("GATEWAY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ratelimit.BackendRedis, cfg.RateLimit.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Minute, cfg.Features.CacheTTL)

	overrides, err := cfg.RateLimit.PolicyOverrides()
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Policy{MaxRequests: 3, Window: 30 * time.Second}, overrides[ratelimit.PolicyAuth])

	assert.True(t, cfg.Admin.IsAdminEmail(" ops@example.COM"))
	assert.False(t, cfg.Admin.IsAdminEmail("dev@example.com"))
	assert.False(t, cfg.Admin.IsAdminEmail(""))
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": `), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080"},
			JWT:       JWTConfig{Secret: "s", ExpiryHours: 1},
			RateLimit: RateLimitConfig{Backend: ratelimit.BackendMemory, MaxEntries: 10, AuditBuffer: 10},
			Features: FeaturesConfig{
				CacheTTL:           time.Minute,
				PersistTTL:         time.Hour,
				FetchTimeout:       time.Second,
				BreakerMaxFailures: 1,
				BreakerTimeout:     time.Second,
			},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no port":           func(c *Config) { c.Server.Port = "" },
		"unknown backend":   func(c *Config) { c.RateLimit.Backend = "memcached" },
		"no entries":        func(c *Config) { c.RateLimit.MaxEntries = 0 },
		"no audit buffer":   func(c *Config) { c.RateLimit.AuditBuffer = 0 },
		"bad policy":        func(c *Config) { c.RateLimit.Policies = map[string]PolicyConfig{"ai": {MaxRequests: 0, WindowMs: 1000}} },
		"no cache ttl":      func(c *Config) { c.Features.CacheTTL = 0 },
		"persist too short": func(c *Config) { c.Features.PersistTTL = time.Second },
		"no fetch timeout":  func(c *Config) { c.Features.FetchTimeout = 0 },
		"no breaker":        func(c *Config) { c.Features.BreakerTimeout = 0 },
		"no secret":         func(c *Config) { c.JWT.Secret = "" },
		"no expiry":         func(c *Config) { c.JWT.ExpiryHours = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
