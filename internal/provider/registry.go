package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when a backend answers with a blank body.
var ErrEmptyResponse = errors.New("provider: empty response")

// Invoker wraps one text-generation backend. Invokers never retry; fallback
// across backends is the sequencer's job.
type Invoker func(ctx context.Context, prompt string) (string, error)

// Registry is the immutable set of named invokers built at startup.
// Names are kept in registration order, which seeds the fallback order.
type Registry struct {
	names    []string
	invokers map[string]Invoker
	timeout  time.Duration
}

// NewRegistry returns an empty registry whose invocations are bounded by
// timeout. A non-positive timeout disables the per-call bound.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		invokers: map[string]Invoker{},
		timeout:  timeout,
	}
}

func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a named invoker. It is only meant to be called while the
// registry is being built.
func (r *Registry) Register(name string, inv Invoker) error {
	key := NormalizeName(name)
	if key == "" {
		return errors.New("provider: name must not be empty")
	}
	if inv == nil {
		return fmt.Errorf("provider: invoker for %q must not be nil", key)
	}
	if _, dup := r.invokers[key]; dup {
		return fmt.Errorf("provider: %q already registered", key)
	}
	r.invokers[key] = inv
	r.names = append(r.names, key)
	return nil
}

// Names returns a copy of the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Len() int {
	return len(r.names)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.invokers[NormalizeName(name)]
	return ok
}

func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Invoke calls the named backend once. The returned text is trimmed; a blank
// result is reported as ErrEmptyResponse.
func (r *Registry) Invoke(ctx context.Context, name, prompt string) (string, error) {
	key := NormalizeName(name)
	inv, ok := r.invokers[key]
	if !ok {
		return "", fmt.Errorf("provider: %q is not registered", key)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := inv(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("provider: %s: %w", key, ErrEmptyResponse)
	}
	return out, nil
}
