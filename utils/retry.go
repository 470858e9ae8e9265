package utils

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds configuration for retry operations.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig suits quick in-process operations.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

// StorageRetryConfig is the slower profile used for opening the device
// store at startup, where the database may still be settling.
func StorageRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  25 * time.Second,
	}
}

func (c *RetryConfig) build() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	return b
}

// WithRetry executes an operation with exponential backoff.
func WithRetry(operation func() error, config *RetryConfig) error {
	return backoff.Retry(operation, config.build())
}

// WithRetryNotify is WithRetry with a callback per failed attempt.
func WithRetryNotify(operation func() error, config *RetryConfig, notify func(err error, next time.Duration)) error {
	return backoff.RetryNotify(operation, config.build(), notify)
}
