package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/logging"
	"github.com/convoflow/convoflow/model"
)

// errNoFinalResponse signals a provider that closed its channels without a
// terminal response. Treated as permanent: the payload is malformed, not flaky.
var errNoFinalResponse = errors.New("provider returned no final response")

// RetryPolicy bounds the per-model retry loop. Waits follow
// wait = min(MaxWait, MinWait * Multiplier^attempt).
type RetryPolicy struct {
	MaxAttempts int
	Multiplier  float64
	MinWait     time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy mirrors the service defaults: 3 attempts, doubling
// backoff between 2s and 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Multiplier: 2, MinWait: 2 * time.Second, MaxWait: 10 * time.Second}
}

// Options configure the Service.
type Options struct {
	// DefaultModel selects the starting model; an unknown name falls back
	// to the first registry entry with a warning rather than failing.
	DefaultModel string
	Policy       RetryPolicy
	Logger       logging.Logger
}

// CallOptions tune one invocation.
type CallOptions struct {
	// ModelName pins the call to a specific registry model. A name missing
	// from the registry keeps the current active model instead of failing.
	ModelName string
	// Overrides construct a fresh client instance for this call instead of
	// the registry's shared default.
	Overrides *model.Config
	// OnDelta, when non-nil, switches the request to streaming and receives
	// every partial text fragment as it is produced. Fallback then applies
	// only before the first forwarded fragment; a failure mid-stream
	// propagates instead of retrying to avoid duplicated output.
	OnDelta func(text string)
}

// Service wraps the registry with retry and circular fallback. Safe for
// concurrent use; the active model index is shared across calls on purpose
// (sticky fallback).
type Service struct {
	registry *model.Registry
	policy   RetryPolicy
	logger   logging.Logger

	mu      sync.Mutex
	current int
}

// NewService creates a Service starting at the configured default model.
func NewService(registry *model.Registry, optFns ...func(o *Options)) *Service {
	opts := Options{Policy: DefaultRetryPolicy(), Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Service{registry: registry, policy: opts.Policy, logger: opts.Logger}
	if opts.DefaultModel != "" {
		if idx, ok := registry.Index(opts.DefaultModel); ok {
			s.current = idx
		} else {
			s.logger.Warn("llm.default_model_not_found",
				"requested", opts.DefaultModel,
				"using", registry.At(0).Config.Name)
		}
	}
	s.logger.Info("llm.service_initialized",
		"default_model", registry.At(s.current).Config.Name,
		"model_index", s.current,
		"total_models", registry.Len())
	return s
}

// ActiveModel returns the name of the current active model.
func (s *Service) ActiveModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.At(s.current).Config.Name
}

// Call invokes the active model with per-model retry, falling back through
// the registry in circular order on exhaustion. At most Len() distinct
// models are tried in one call; if all fail the returned error is
// *core.AllModelsExhaustedError wrapping the last underlying failure.
// On success the active index stays at the model that succeeded.
func (s *Service) Call(ctx context.Context, req model.Request, opts *CallOptions) (*model.Response, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	s.pin(opts.ModelName)

	total := s.registry.Len()
	tried := 0
	var lastErr error

	for tried < total {
		entry := s.activeEntry()
		m := entry.Model
		if opts.Overrides != nil {
			custom, err := s.registry.Get(entry.Config.Name, opts.Overrides)
			if err != nil {
				return nil, err
			}
			m = custom
		}

		resp, err := s.invokeWithRetry(ctx, entry.Config.Name, m, req, opts.OnDelta)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		tried++
		s.logger.Error("llm.call_failed_after_retries",
			"model", entry.Config.Name,
			"models_tried", tried,
			"total_models", total,
			"error", err.Error())

		if ctx.Err() != nil {
			// Cancellation is not exhaustion: stop falling back and report
			// the context error so callers can match context.Canceled.
			s.logger.Warn("llm.call_cancelled", "models_tried", tried)
			return nil, fmt.Errorf("model call cancelled after %d models: %w", tried, ctx.Err())
		}
		if tried >= total {
			break
		}
		s.advance()
	}

	s.logger.Error("llm.all_models_failed", "models_tried", tried)
	return nil, &core.AllModelsExhaustedError{ModelsTried: tried, LastErr: lastErr}
}

// pin moves the active index to the named model when present in the
// registry; unknown names keep the current index.
func (s *Service) pin(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.registry.Index(name); ok {
		s.current = idx
		s.logger.Info("llm.using_requested_model", "model", name)
		return
	}
	s.logger.Warn("llm.requested_model_not_found", "model", name)
}

func (s *Service) activeEntry() model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.At(s.current)
}

// advance moves to the next model in circular order.
func (s *Service) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := (s.current + 1) % s.registry.Len()
	s.logger.Warn("llm.switching_to_next_model",
		"from_index", s.current,
		"to_index", next,
		"to_model", s.registry.At(next).Config.Name)
	s.current = next
}

// invokeWithRetry runs the bounded per-model retry loop. Only transient
// errors are retried; every other failure is returned immediately so the
// outer loop can decide on fallback.
func (s *Service) invokeWithRetry(
	ctx context.Context,
	name string,
	m model.Model,
	req model.Request,
	onDelta func(string),
) (*model.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.policy.MinWait
	bo.MaxInterval = s.policy.MaxWait
	bo.Multiplier = s.policy.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var resp *model.Response
	streamed := false
	attempt := 0

	operation := func() error {
		attempt++
		r, err := s.invokeOnce(ctx, name, m, req, onDelta, &streamed)
		if err != nil {
			if streamed {
				// Output already reached the consumer; retrying would
				// duplicate it. Surface as a terminal stream failure.
				return backoff.Permanent(err)
			}
			if core.Classify(err) == core.KindTransient {
				s.logger.Warn("llm.call_retrying",
					"model", name, "attempt", attempt, "error", err.Error())
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	maxRetries := uint64(0)
	if s.policy.MaxAttempts > 1 {
		maxRetries = uint64(s.policy.MaxAttempts - 1)
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// invokeOnce drives one Generate call to completion, forwarding partial text
// to onDelta when streaming and returning the final response.
func (s *Service) invokeOnce(
	ctx context.Context,
	name string,
	m model.Model,
	req model.Request,
	onDelta func(string),
	streamed *bool,
) (*model.Response, error) {
	req.Stream = onDelta != nil
	start := time.Now()

	respCh, errCh := m.Generate(ctx, req)

	var final *model.Response
	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onDelta != nil {
					if text := r.Text(); text != "" {
						*streamed = true
						onDelta(text)
					}
				}
				continue
			}
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, &core.ProviderError{Kind: core.KindTransient, Provider: m.Info().Provider, Model: name, Err: ctx.Err()}
		}
	}

	if final == nil {
		return nil, &core.ProviderError{
			Kind:     core.KindPermanent,
			Provider: m.Info().Provider,
			Model:    name,
			Err:      errNoFinalResponse,
		}
	}

	s.logger.Debug("llm.call_successful",
		"model", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"message_count", len(req.Messages))
	return final, nil
}
