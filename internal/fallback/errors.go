package fallback

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ProviderError records one failed attempt against a provider.
type ProviderError struct {
	Name  string
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("fallback: provider %s failed: %v", e.Name, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// QuotaExceededError records a provider skipped because its daily ceiling
// was reached.
type QuotaExceededError struct {
	Name  string
	Limit int
	Used  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("fallback: provider %s quota exceeded (%d/%d)", e.Name, e.Used, e.Limit)
}

type ExhaustionKind string

const (
	KindNoProviders    ExhaustionKind = "no_providers"
	KindQuotaExhausted ExhaustionKind = "quota_exhausted"
	KindFailed         ExhaustionKind = "providers_failed"
)

// ExhaustedError is returned when no provider produced a reply. Errors holds
// one entry per provider in the snapshot that was tried or skipped.
type ExhaustedError struct {
	Errors map[string]error
}

func (e *ExhaustedError) Kind() ExhaustionKind {
	if len(e.Errors) == 0 {
		return KindNoProviders
	}
	for _, err := range e.Errors {
		var q *QuotaExceededError
		if !errors.As(err, &q) {
			return KindFailed
		}
	}
	return KindQuotaExhausted
}

// Reasons flattens Errors into strings for logs and telemetry.
func (e *ExhaustedError) Reasons() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for name, err := range e.Errors {
		out[name] = err.Error()
	}
	return out
}

func (e *ExhaustedError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Errors[name].Error())
	}
	if len(parts) == 0 {
		return fmt.Sprintf("fallback: all providers exhausted (%s)", e.Kind())
	}
	return fmt.Sprintf("fallback: all providers exhausted (%s): %s", e.Kind(), strings.Join(parts, "; "))
}
