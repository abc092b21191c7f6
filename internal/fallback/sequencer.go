package fallback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Backend is the registry surface the sequencer needs.
type Backend interface {
	Names() []string
	Invoke(ctx context.Context, name, prompt string) (string, error)
}

// Sequencer walks providers in a mutable try order, honoring quotas and the
// response cache, and promotes each winner to the front.
type Sequencer struct {
	backend Backend
	quota   *Quota
	cache   *Cache
	logger  *slog.Logger

	mu    sync.Mutex
	order []string
}

func NewSequencer(backend Backend, quota *Quota, cache *Cache, logger *slog.Logger) (*Sequencer, error) {
	if backend == nil {
		return nil, errors.New("fallback: backend must not be nil")
	}
	if quota == nil {
		return nil, errors.New("fallback: quota must not be nil")
	}
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		backend: backend,
		quota:   quota,
		cache:   cache,
		logger:  logger,
		order:   backend.Names(),
	}, nil
}

// Snapshot returns a copy of the current try order.
func (s *Sequencer) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Sequencer) Quota() *Quota { return s.quota }

// Usage returns a copy of the per-provider counters for the current window.
func (s *Sequencer) Usage() map[string]int { return s.quota.Usage() }

func (s *Sequencer) Cache() *Cache { return s.cache }

// GenerateRaw returns the first usable reply. When every provider is skipped
// or fails it returns an *ExhaustedError carrying one entry per provider.
//
// A cache hit returns the memoized reply and promotes the provider without
// consuming quota. Cancellation is bookkept like any other failure: no
// counter increment and no promotion.
func (s *Sequencer) GenerateRaw(ctx context.Context, prompt string) (string, error) {
	order := s.Snapshot()
	failures := make(map[string]error, len(order))

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			failures[name] = &ProviderError{Name: name, Cause: err}
			continue
		}
		if err := s.quota.Check(name); err != nil {
			s.logger.Warn("provider skipped", "provider", name, "err", err)
			failures[name] = err
			continue
		}
		if text, ok := s.cache.Get(name, prompt); ok {
			s.promote(name)
			return text, nil
		}

		text, err := s.backend.Invoke(ctx, name, prompt)
		if err != nil {
			s.logger.Warn("provider failed", "provider", name, "err", err)
			failures[name] = &ProviderError{Name: name, Cause: err}
			continue
		}
		s.cache.Put(name, prompt, text)
		s.quota.Increment(name)
		s.promote(name)
		return text, nil
	}
	return "", &ExhaustedError{Errors: failures}
}

// promote moves name to the front of the live order, keeping the relative
// order of everything else.
func (s *Sequencer) promote(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, n := range s.order {
		if n == name {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}
	copy(s.order[1:idx+1], s.order[:idx])
	s.order[0] = name
}
