package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for the retry/fallback decision
// table: transient errors are retried with backoff on the same model, every
// other provider error skips straight to fallback.
type ErrorKind int

const (
	// KindPermanent is a non-retryable provider failure (bad request,
	// authentication, provider-side rejection).
	KindPermanent ErrorKind = iota
	// KindTransient covers rate limiting, timeouts and transient server
	// faults; eligible for per-model retry.
	KindTransient
	// KindUnknownModel signals a model name missing from the registry.
	KindUnknownModel
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindTransient:
		return "transient"
	case KindUnknownModel:
		return "unknown_model"
	default:
		return "unknown"
	}
}

// ProviderError wraps a raw provider/SDK failure with its classification.
// Adapters construct these at the provider boundary so no downstream code
// ever inspects vendor error types.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (%s, model %s): %v", e.Kind, e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify returns the ErrorKind for an error. Unwrapped or foreign errors
// are treated as permanent: only failures explicitly tagged transient at the
// provider boundary are ever retried.
func Classify(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ume *UnknownModelError
	if errors.As(err, &ume) {
		return KindUnknownModel
	}
	return KindPermanent
}

// UnknownModelError is returned when a model name is not present in the
// registry. The message enumerates every registered name.
type UnknownModelError struct {
	Name      string
	Available []string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q not found in registry. available models: %s",
		e.Name, strings.Join(e.Available, ", "))
}

// AllModelsExhaustedError is raised once every registered model has been
// tried within one call. It wraps the last underlying error.
type AllModelsExhaustedError struct {
	ModelsTried int
	LastErr     error
}

func (e *AllModelsExhaustedError) Error() string {
	return fmt.Sprintf("failed to get response after trying %d models. last error: %v", e.ModelsTried, e.LastErr)
}

func (e *AllModelsExhaustedError) Unwrap() error { return e.LastErr }

// ToolNotFoundError is fatal for the current turn: the model requested a
// capability the registry does not provide and there is no partial recovery.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}
