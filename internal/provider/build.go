package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"response-broker/internal/integrations/gemini"
	"response-broker/internal/integrations/huggingface"
	"response-broker/internal/integrations/openai"
)

// Backend kinds understood by Build.
const (
	KindOpenAI      = "openai"
	KindOpenRouter  = "openrouter"
	KindGemini      = "gemini"
	KindHuggingFace = "huggingface"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterReferer = "https://kaizen-agent"
	openRouterTitle   = "Kaizen Agent"
)

// Spec describes one catalog entry. The catalog order is the initial
// fallback order.
type Spec struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Credential string `yaml:"credential"`
	DailyLimit int    `yaml:"daily_limit,omitempty"`
}

type BuildOptions struct {
	Timeout      time.Duration
	SystemPrompt string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Build registers every spec whose credential is present. Specs without a
// credential are skipped; lookup failures abort startup.
func Build(ctx context.Context, specs []Spec, creds CredentialSource, opts BuildOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry(opts.Timeout)
	for _, spec := range specs {
		secret, err := creds.Lookup(ctx, spec.Credential)
		if err != nil {
			return nil, err
		}
		if secret == "" {
			logger.Info("provider skipped: no credential", "provider", spec.Name, "credential", spec.Credential)
			continue
		}
		inv, err := newInvoker(spec, secret, opts)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(spec.Name, inv); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// DailyLimits extracts the configured ceilings; zero means unlimited.
func DailyLimits(specs []Spec) map[string]int {
	out := map[string]int{}
	for _, s := range specs {
		if s.DailyLimit > 0 {
			out[NormalizeName(s.Name)] = s.DailyLimit
		}
	}
	return out
}

func newInvoker(spec Spec, secret string, opts BuildOptions) (Invoker, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	switch NormalizeName(spec.Kind) {
	case KindOpenAI, KindOpenRouter:
		clientOpts := []openai.Option{openai.WithHTTPClient(httpClient)}
		base := spec.BaseURL
		if NormalizeName(spec.Kind) == KindOpenRouter {
			if base == "" {
				base = openRouterBaseURL
			}
			clientOpts = append(clientOpts,
				openai.WithHeader("HTTP-Referer", openRouterReferer),
				openai.WithHeader("X-Title", openRouterTitle),
			)
		}
		if base != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(base))
		}
		c, err := openai.NewClient(secret, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("provider: %s: %w", spec.Name, err)
		}
		model, system := spec.Model, opts.SystemPrompt
		return func(ctx context.Context, prompt string) (string, error) {
			return c.Prompt(ctx, model, system, prompt)
		}, nil

	case KindGemini:
		clientOpts := []gemini.Option{gemini.WithHTTPClient(httpClient)}
		if spec.BaseURL != "" {
			clientOpts = append(clientOpts, gemini.WithBaseURL(spec.BaseURL))
		}
		c, err := gemini.NewClient(secret, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("provider: %s: %w", spec.Name, err)
		}
		model := spec.Model
		return func(ctx context.Context, prompt string) (string, error) {
			return c.Generate(ctx, model, prompt)
		}, nil

	case KindHuggingFace:
		clientOpts := []huggingface.Option{huggingface.WithHTTPClient(httpClient)}
		if spec.BaseURL != "" {
			clientOpts = append(clientOpts, huggingface.WithBaseURL(spec.BaseURL))
		}
		c, err := huggingface.NewClient(secret, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("provider: %s: %w", spec.Name, err)
		}
		model := spec.Model
		return func(ctx context.Context, prompt string) (string, error) {
			return c.Generate(ctx, model, prompt)
		}, nil
	}
	return nil, fmt.Errorf("provider: %s: unknown kind %q", spec.Name, strings.TrimSpace(spec.Kind))
}
