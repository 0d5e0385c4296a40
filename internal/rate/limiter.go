package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle bool

	MaxSignInAttempts int
	SignInCooldown    time.Duration

	MaxResetRequests int
	ResetCooldown    time.Duration
}

// Limiter enforces per-email and per-IP budgets for failed sign-ins and
// password-reset requests using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSignIn checks whether the email+IP pair is within the failed sign-in
// budget. It does not consume budget.
func (l *Limiter) CheckSignIn(ctx context.Context, email, ip string) error {
	if err := l.checkCounter(ctx, signInEmailKey(email), l.config.MaxSignInAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, signInIPKey(ip), l.config.MaxSignInAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementSignIn records a failed sign-in for the email+IP pair and returns
// [ErrRateLimited] when that attempt spent the budget.
func (l *Limiter) IncrementSignIn(ctx context.Context, email, ip string) error {
	count, err := l.incrementWithTTL(ctx, signInEmailKey(email), l.config.SignInCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignInAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, signInIPKey(ip), l.config.SignInCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxSignInAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetSignIn clears the failed sign-in counters for the email+IP pair.
// Called after a successful sign-in or password reset.
func (l *Limiter) ResetSignIn(ctx context.Context, email, ip string) error {
	keys := []string{signInEmailKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, signInIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// SignInAttempts returns the current failed sign-in counter for an email.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) SignInAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, signInEmailKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// AllowResetRequest consumes one password-reset request from the email and
// IP windows.
func (l *Limiter) AllowResetRequest(ctx context.Context, email, ip string) error {
	if err := l.enforceFixedWindow(ctx, resetEmailKey(email), l.config.MaxResetRequests, l.config.ResetCooldown); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, resetIPKey(ip), l.config.MaxResetRequests, l.config.ResetCooldown); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) enforceFixedWindow(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func signInEmailKey(email string) string {
	return "gsi:" + normalizeEmail(email)
}

func signInIPKey(ip string) string {
	return "gsip:" + ip
}

func resetEmailKey(email string) string {
	return "gpr:" + normalizeEmail(email)
}

func resetIPKey(ip string) string {
	return "gprip:" + ip
}
