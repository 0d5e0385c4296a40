package goGate

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Config defines the full Engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Session       SessionConfig
	JWT           JWTConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Account       AccountConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime, the session cookie and the
// in-process session cache.
type SessionConfig struct {
	RedisPrefix string
	CookieName  string
	// ExpiresIn is the lifetime granted at sign-in and on each renewal.
	ExpiresIn time.Duration
	// UpdateAge is how long after the last renewal a read extends the
	// session again.
	UpdateAge time.Duration

	CookieCacheEnabled bool
	CookieCacheMaxAge  time.Duration
	CookieCacheSize    int

	SecureCookie   bool
	SameSitePolicy http.SameSite
	CookiePath     string
	CookieDomain   string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls the optional bearer access tokens issued alongside
// the session cookie.
type JWTConfig struct {
	Enabled       bool
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the length policy and argon2id parameters.
type PasswordConfig struct {
	MinLength   int
	MaxLength   int
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordResetConfig controls the emailed reset-token flow.
type PasswordResetConfig struct {
	Enabled         bool
	TokenTTL        time.Duration
	MaxAttempts     int
	RequestLimit    int
	RequestCooldown time.Duration
	RedisPrefix     string
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls self-service sign-up.
type AccountConfig struct {
	AllowSignUp bool
	DefaultRole Role
	AutoSignIn  bool
}

// SecurityConfig holds sign-in throttling.
type SecurityConfig struct {
	MaxSignInAttempts int
	SignInCooldown    time.Duration
	EnableIPThrottle  bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: 7-day sessions renewed
// daily, a 5-minute session cache, 6..128 character passwords and 1-hour
// reset tokens.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:        "gs",
			CookieName:         "gogate.session_token",
			ExpiresIn:          7 * 24 * time.Hour,
			UpdateAge:          24 * time.Hour,
			CookieCacheEnabled: true,
			CookieCacheMaxAge:  5 * time.Minute,
			CookieCacheSize:    10000,
			SecureCookie:       true,
			SameSitePolicy:     http.SameSiteLaxMode,
			CookiePath:         "/",
		},
		JWT: JWTConfig{
			Enabled:       false,
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			MinLength:   6,
			MaxLength:   128,
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:         true,
			TokenTTL:        time.Hour,
			MaxAttempts:     5,
			RequestLimit:    3,
			RequestCooldown: 15 * time.Minute,
			RedisPrefix:     "gpr",
		},
		Account: AccountConfig{
			AllowSignUp: true,
			DefaultRole: DefaultRole,
			AutoSignIn:  true,
		},
		Security: SecurityConfig{
			MaxSignInAttempts: 5,
			SignInCooldown:    15 * time.Minute,
			EnableIPThrottle:  true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.CookieName == "" {
		return errors.New("Session CookieName must not be empty")
	}
	if c.Session.ExpiresIn <= 0 {
		return errors.New("Session ExpiresIn must be > 0")
	}
	if c.Session.UpdateAge < 0 || c.Session.UpdateAge > c.Session.ExpiresIn {
		return errors.New("Session UpdateAge must be within [0, ExpiresIn]")
	}
	if c.Session.CookieCacheEnabled {
		if c.Session.CookieCacheMaxAge <= 0 {
			return errors.New("Session CookieCacheMaxAge must be > 0 when the cache is enabled")
		}
		if c.Session.CookieCacheSize <= 0 {
			return errors.New("Session CookieCacheSize must be > 0 when the cache is enabled")
		}
	}

	// JWT
	if c.JWT.Enabled {
		if c.JWT.AccessTTL <= 0 {
			return errors.New("JWT AccessTTL must be > 0")
		}
		switch c.JWT.SigningMethod {
		case "hs256":
			if len(c.JWT.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		case "ed25519":
			if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		default:
			return errors.New("unsupported JWT signing method")
		}
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Password Reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TokenTTL <= 0 {
			return errors.New("PasswordReset TokenTTL must be > 0")
		}
		if c.PasswordReset.MaxAttempts <= 0 {
			return errors.New("PasswordReset MaxAttempts must be > 0")
		}
		if c.PasswordReset.RequestLimit <= 0 || c.PasswordReset.RequestCooldown <= 0 {
			return errors.New("PasswordReset RequestLimit and RequestCooldown must be > 0")
		}
		if c.PasswordReset.RedisPrefix == "" {
			return errors.New("PasswordReset RedisPrefix must not be empty")
		}
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return fmt.Errorf("Account DefaultRole: %w", ErrRoleInvalid)
	}

	// Security
	if c.Security.MaxSignInAttempts <= 0 {
		return errors.New("Security MaxSignInAttempts must be > 0")
	}
	if c.Security.SignInCooldown <= 0 {
		return errors.New("Security SignInCooldown must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
