package refile

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultAttemptTimeout bounds a single backend attempt when none is configured.
const DefaultAttemptTimeout = 60 * time.Second

// ChainResult is the outcome of a successful FallbackChain upload.
type ChainResult struct {
	URL      string `json:"url"`
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// AttemptObserver is notified after every backend attempt. outcome is one of
// "success", "failure" or "skipped".
type AttemptObserver interface {
	ObserveAttempt(provider, outcome string, d time.Duration)
}

// AttemptError records why one backend did not take an upload.
type AttemptError struct {
	Provider string
	Skipped  bool
	Err      error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e AttemptError) Unwrap() error { return e.Err }

// ChainError is returned when every backend in a chain was skipped or failed.
type ChainError struct {
	Attempts []AttemptError
}

func (e *ChainError) Error() string {
	if len(e.Attempts) == 0 {
		return "all backends failed: no backends configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "all backends failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes each attempt's error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// FallbackChain uploads to an ordered list of backends, taking the first one that succeeds.
// The order is a strict priority configured externally; there is no balancing.
type FallbackChain struct {
	backends []Backend
	timeout  time.Duration
	logger   Logger
	observer AttemptObserver
}

// NewFallbackChain creates a chain over backends in priority order.
// attemptTimeout bounds each individual attempt; zero selects DefaultAttemptTimeout.
func NewFallbackChain(backends []Backend, attemptTimeout time.Duration, logger Logger) *FallbackChain {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &FallbackChain{
		backends: backends,
		timeout:  attemptTimeout,
		logger:   logger,
	}
}

// SetObserver registers an observer for attempt outcomes.
func (c *FallbackChain) SetObserver(o AttemptObserver) {
	c.observer = o
}

// Backends returns the configured backends in priority order.
func (c *FallbackChain) Backends() []Backend {
	return c.backends
}

// Lookup returns the backend with the given name, or nil.
func (c *FallbackChain) Lookup(name string) Backend {
	for _, b := range c.backends {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// Upload tries each backend in order. Backends whose size ceiling is below len(data)
// are skipped without being called. The first success is returned immediately.
// If nothing succeeds the error is a *ChainError listing every backend and its reason.
func (c *FallbackChain) Upload(ctx context.Context, data []byte, filename, mime string) (*ChainResult, error) {
	size := int64(len(data))
	chainErr := &ChainError{}

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			chainErr.Attempts = append(chainErr.Attempts, AttemptError{Provider: b.Name(), Err: err})
			return nil, chainErr
		}

		if max := b.MaxSize(); max > 0 && size > max {
			c.logger.Debug("backend skipped", "backend", b.Name(), "size", size, "max_size", max)
			chainErr.Attempts = append(chainErr.Attempts, AttemptError{
				Provider: b.Name(),
				Skipped:  true,
				Err:      fmt.Errorf("skipped: size %d exceeds limit %d", size, max),
			})
			c.observe(b.Name(), "skipped", 0)
			continue
		}

		start := time.Now()
		res, err := c.attempt(ctx, b, data, filename, mime)
		elapsed := time.Since(start)
		if err != nil {
			c.logger.Warn("backend upload failed", "backend", b.Name(), "error", err, "duration", elapsed)
			chainErr.Attempts = append(chainErr.Attempts, AttemptError{Provider: b.Name(), Err: err})
			c.observe(b.Name(), "failure", elapsed)
			continue
		}

		c.observe(b.Name(), "success", elapsed)
		c.logger.Info("backend upload succeeded", "backend", b.Name(), "url", res.URL, "duration", elapsed)
		return &ChainResult{URL: res.URL, ID: res.ID, Provider: b.Name()}, nil
	}

	return nil, chainErr
}

// attempt runs one backend upload under the per-attempt timeout.
func (c *FallbackChain) attempt(ctx context.Context, b Backend, data []byte, filename, mime string) (*UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := b.Upload(ctx, data, filename, mime)
	if err != nil {
		return nil, err
	}
	if res == nil || res.URL == "" || res.ID == "" {
		return nil, fmt.Errorf("backend returned an incomplete result")
	}
	return res, nil
}

func (c *FallbackChain) observe(provider, outcome string, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveAttempt(provider, outcome, d)
	}
}
