package rate

import "errors"

var (
	// ErrRateLimited is returned once a window's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when a counter cannot be read or written.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
