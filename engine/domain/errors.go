// Package domain holds the error kinds shared by the probe's providers.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrEmptyText     = errors.New("empty text")
	ErrInvalidConfig = errors.New("invalid config")
)

// ProviderError reports a non-success HTTP (or gRPC) status from a remote
// provider such as Ollama or Qdrant.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s error %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// NewProviderError creates a ProviderError. Body is truncated to keep log
// lines readable.
func NewProviderError(provider string, status int, body string) *ProviderError {
	const max = 256
	if len(body) > max {
		body = body[:max] + "..."
	}
	return &ProviderError{Provider: provider, StatusCode: status, Body: body}
}

// IsProviderStatus reports whether err wraps a ProviderError with the given
// status code.
func IsProviderStatus(err error, status int) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == status
	}
	return false
}

// ConfigError wraps ErrInvalidConfig with the offending field.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (value=%q)", ErrInvalidConfig, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
