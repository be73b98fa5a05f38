package services

import (
	"fmt"
	"strings"
)

// ConfigurationError means a required setting is missing. Maps to 503.
type ConfigurationError struct{ Message string }

func (e *ConfigurationError) Error() string { return e.Message }

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Validation error"
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

// ProviderRequestError is a transport failure or non-2xx reply from the provider.
type ProviderRequestError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderRequestError) Error() string {
	provider := e.Provider
	if provider == "" {
		provider = "TwelveLabs"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %v", provider, e.Op, e.Err)
	}
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("%s %s failed: %d %s", provider, e.Op, e.StatusCode, body)
}

func (e *ProviderRequestError) Unwrap() error { return e.Err }

// ProviderProcessingError is a provider-reported failure of the indexing task,
// or a reply that breaks the provider contract.
type ProviderProcessingError struct{ Message string }

func (e *ProviderProcessingError) Error() string { return e.Message }

type TimeoutError struct {
	TaskID     string
	LastStatus string
	Timeout    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("TwelveLabs task %s did not complete within %s (last status: %s)", e.TaskID, e.Timeout, e.LastStatus)
}

type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }
