package goGate

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/session"
)

// Builder assembles an [Engine]. A Builder is single-use: call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	mailer    Mailer
	auditSink AuditSink
	logger    *slog.Logger
	onReset   PasswordResetHook

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, throttles and reset
// tokens. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the account store. Required.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithMailer sets the password reset mailer. Required while
// PasswordReset.Enabled is true.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithPasswordResetHook registers a callback run after each completed
// password reset.
func (b *Builder) WithPasswordResetHook(hook PasswordResetHook) *Builder {
	b.onReset = hook
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if cfg.PasswordReset.Enabled && b.mailer == nil {
		return nil, errors.New("password reset requires a mailer")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- SESSIONS --------
	store := session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.ExpiresIn,
		cfg.Session.UpdateAge,
	)

	var cache *sessionCache
	if cfg.Session.CookieCacheEnabled {
		cache = newSessionCache(cfg.Session.CookieCacheSize, cfg.Session.CookieCacheMaxAge)
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		store:   store,
		cache:   cache,
		users:   b.users,
		mailer:  b.mailer,
		onReset: b.onReset,
		logger:  logger,
		clock:   time.Now,
	}

	// -------- THROTTLES & RESET TOKENS --------
	engine.limiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:  cfg.Security.EnableIPThrottle,
		MaxSignInAttempts: cfg.Security.MaxSignInAttempts,
		SignInCooldown:    cfg.Security.SignInCooldown,
		MaxResetRequests:  cfg.PasswordReset.RequestLimit,
		ResetCooldown:     cfg.PasswordReset.RequestCooldown,
	})
	if cfg.PasswordReset.Enabled {
		engine.resets = stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix)
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := newHasher(cfg.Password)
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.hasher = ph

	if cfg.JWT.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
			Leeway:        cfg.JWT.Leeway,
		})
		if err != nil {
			engine.audit.Close()
			return nil, err
		}
		engine.tokens = jm
	}

	b.built = true

	return engine, nil
}

// BuildProvisioner validates the configuration and returns a [Provisioner].
// Only the user store is required; no Redis client is needed.
func (b *Builder) BuildProvisioner() (*Provisioner, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	ph, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	b.built = true

	return &Provisioner{users: b.users, hasher: ph}, nil
}

func newHasher(cfg PasswordConfig) (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		MinLength:   cfg.MinLength,
		MaxLength:   cfg.MaxLength,
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
}
