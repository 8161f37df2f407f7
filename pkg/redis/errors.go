package redis

import "errors"

var (
	ErrEmptyConnectionURL   = errors.New("redis.empty_connection_url")
	ErrInvalidConnectionURL = errors.New("redis.invalid_connection_url")
	ErrRedisNotReady        = errors.New("redis.not_ready")
	ErrHealthcheckFailed    = errors.New("redis.healthcheck_failed")
)
