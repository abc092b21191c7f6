package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"response-broker/internal/integrations/paramstore"
)

// CredentialSource resolves a credential name to a secret. An absent
// credential is reported as ("", nil) so the backend is simply skipped.
type CredentialSource interface {
	Lookup(ctx context.Context, credential string) (string, error)
}

// envVars maps well-known credential names to the variables the deployment
// has always used.
var envVars = map[string]string{
	"openai":      "OPENAI_API_KEY",
	"gemini":      "GEMINI_API_KEY",
	"huggingface": "HUGGINGFACE_API_TOKEN",
	"openrouter":  "OPENROUTER_API_KEY",
}

// EnvVar returns the environment variable consulted for credential.
func EnvVar(credential string) string {
	key := NormalizeName(credential)
	if v, ok := envVars[key]; ok {
		return v
	}
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_")) + "_API_KEY"
}

// EnvCredentials reads credentials from environment variables.
type EnvCredentials struct {
	Getenv func(string) string
}

func (e EnvCredentials) Lookup(_ context.Context, credential string) (string, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return strings.TrimSpace(getenv(EnvVar(credential))), nil
}

// tokenPayload is the expected JSON shape stored in SSM for an API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamCredentials reads credentials from SSM parameters named
// <prefix>/providers/<credential>-token holding {"token":"..."}. When the
// getter can list by path, every token is fetched in a single pass on the
// first lookup.
type ParamCredentials struct {
	getter paramstore.Getter
	prefix string

	mu     sync.Mutex
	loaded map[string]string
}

func NewParamCredentials(g paramstore.Getter, prefix string) (*ParamCredentials, error) {
	if g == nil {
		return nil, errors.New("provider: paramstore getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("provider: parameter prefix must not be empty")
	}
	return &ParamCredentials{getter: g, prefix: prefix}, nil
}

func (p *ParamCredentials) providersPath() string {
	return p.prefix + "/providers"
}

func (p *ParamCredentials) parameterName(credential string) string {
	return p.providersPath() + "/" + NormalizeName(credential) + "-token"
}

func (p *ParamCredentials) Lookup(ctx context.Context, credential string) (string, error) {
	name := p.parameterName(credential)
	raw, found, err := p.fetch(ctx, name)
	if err != nil {
		return "", fmt.Errorf("provider: fetch %s token: %w", credential, err)
	}
	if !found {
		return "", nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("provider: unmarshal %s token as JSON: %w", credential, err)
	}
	return strings.TrimSpace(tp.Token), nil
}

func (p *ParamCredentials) fetch(ctx context.Context, name string) (string, bool, error) {
	lister, ok := p.getter.(paramstore.Lister)
	if !ok {
		raw, err := p.getter.GetParameter(ctx, name)
		if errors.Is(err, paramstore.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return raw, true, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded == nil {
		all, err := lister.ListByPath(ctx, p.providersPath())
		if err != nil {
			return "", false, err
		}
		p.loaded = all
	}
	raw, found := p.loaded[name]
	return raw, found, nil
}

// ChainCredentials returns the first non-empty secret from its sources.
type ChainCredentials []CredentialSource

func (c ChainCredentials) Lookup(ctx context.Context, credential string) (string, error) {
	for _, src := range c {
		v, err := src.Lookup(ctx, credential)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}
