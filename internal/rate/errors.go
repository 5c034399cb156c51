package rate

import "errors"

var (
	// ErrRateLimited is returned once a window's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter read or write failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
