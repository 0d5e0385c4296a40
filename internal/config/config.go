package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	goGate "github.com/MrEthical07/goGate"
)

// Config holds the gogate binary configuration.
type Config struct {
	// Database connection string (DSN). postgres:// selects PostgreSQL,
	// anything else is treated as a SQLite path or file: URI.
	DatabaseURL string `yaml:"database_url"`

	// Redis connection URL (redis://host:port/db)
	RedisURL string `yaml:"redis_url"`

	// Server bind address (host:port)
	ServerAddr string `yaml:"server_addr"`

	// Public base URL, used as the default password reset redirect
	BaseURL string `yaml:"base_url"`

	// Enable debug logging
	Debug bool `yaml:"debug"`

	// Emit JSON logs instead of text
	LogJSON bool `yaml:"log_json"`

	// CORS origins allowed to send credentials
	AllowedOrigins []string `yaml:"allowed_origins"`

	Session  SessionConfig  `yaml:"session"`
	Account  AccountConfig  `yaml:"account"`
	JWT      JWTConfig      `yaml:"jwt"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SessionConfig overrides the engine's session settings.
type SessionConfig struct {
	ExpiresIn    time.Duration `yaml:"expires_in"`
	UpdateAge    time.Duration `yaml:"update_age"`
	CacheMaxAge  time.Duration `yaml:"cache_max_age"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

// AccountConfig controls sign-up.
type AccountConfig struct {
	AllowSignUp bool   `yaml:"allow_sign_up"`
	DefaultRole string `yaml:"default_role"`
}

// JWTConfig enables bearer access tokens signed with an HS256 secret.
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	AccessTTL time.Duration `yaml:"access_ttl"`
	Issuer    string        `yaml:"issuer"`
}

// SecurityConfig controls sign-in throttling.
type SecurityConfig struct {
	MaxSignInAttempts int           `yaml:"max_sign_in_attempts"`
	SignInCooldown    time.Duration `yaml:"sign_in_cooldown"`
}

// AuditConfig routes engine audit events to the logger.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig toggles the in-process counters and /metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from environment variables with fallback
// defaults. When path is non-empty the YAML file at path is applied on top;
// keys absent from the file keep their environment value.
func Load(path string) (*Config, error) {
	defaults := goGate.DefaultConfig()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", "file:gogate.db?cache=shared"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ServerAddr:     getEnv("SERVER_ADDR", "localhost:8080"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:3000"),
		Debug:          getEnvBool("DEBUG", false),
		LogJSON:        getEnvBool("LOG_JSON", false),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		Session: SessionConfig{
			ExpiresIn:    getEnvDuration("SESSION_EXPIRES_IN", defaults.Session.ExpiresIn),
			UpdateAge:    getEnvDuration("SESSION_UPDATE_AGE", defaults.Session.UpdateAge),
			CacheMaxAge:  getEnvDuration("SESSION_CACHE_MAX_AGE", defaults.Session.CookieCacheMaxAge),
			SecureCookie: getEnvBool("SECURE_COOKIE", false),
		},
		Account: AccountConfig{
			AllowSignUp: getEnvBool("ALLOW_SIGN_UP", true),
			DefaultRole: getEnv("DEFAULT_ROLE", goGate.DefaultRole.String()),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", ""),
			AccessTTL: getEnvDuration("JWT_ACCESS_TTL", defaults.JWT.AccessTTL),
			Issuer:    getEnv("JWT_ISSUER", "gogate"),
		},
		Security: SecurityConfig{
			MaxSignInAttempts: getEnvInt("MAX_SIGN_IN_ATTEMPTS", defaults.Security.MaxSignInAttempts),
			SignInCooldown:    getEnvDuration("SIGN_IN_COOLDOWN", defaults.Security.SignInCooldown),
		},
		Audit: AuditConfig{
			Enabled: getEnvBool("AUDIT_ENABLED", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Validate checks the fields the binary cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("SERVER_ADDR is required")
	}
	if _, err := goGate.ParseRole(c.Account.DefaultRole); err != nil {
		return fmt.Errorf("DEFAULT_ROLE %q: %w", c.Account.DefaultRole, err)
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// Engine builds the engine configuration. Values not exposed by the binary
// keep their library defaults.
func (c *Config) Engine() (goGate.Config, error) {
	out := goGate.DefaultConfig()

	role, err := goGate.ParseRole(c.Account.DefaultRole)
	if err != nil {
		return out, err
	}

	if c.Session.ExpiresIn > 0 {
		out.Session.ExpiresIn = c.Session.ExpiresIn
	}
	if c.Session.UpdateAge > 0 {
		out.Session.UpdateAge = c.Session.UpdateAge
	}
	if c.Session.CacheMaxAge > 0 {
		out.Session.CookieCacheMaxAge = c.Session.CacheMaxAge
	}
	out.Session.SecureCookie = c.Session.SecureCookie

	out.Account.AllowSignUp = c.Account.AllowSignUp
	out.Account.DefaultRole = role

	if c.JWT.Secret != "" {
		out.JWT.Enabled = true
		out.JWT.SigningMethod = "hs256"
		out.JWT.PrivateKey = []byte(c.JWT.Secret)
		out.JWT.Issuer = c.JWT.Issuer
		if c.JWT.AccessTTL > 0 {
			out.JWT.AccessTTL = c.JWT.AccessTTL
		}
	}

	if c.Security.MaxSignInAttempts > 0 {
		out.Security.MaxSignInAttempts = c.Security.MaxSignInAttempts
	}
	if c.Security.SignInCooldown > 0 {
		out.Security.SignInCooldown = c.Security.SignInCooldown
	}

	out.Audit.Enabled = c.Audit.Enabled
	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.Enabled

	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("engine config: %w", err)
	}
	return out, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a time.Duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
