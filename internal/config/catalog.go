package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"response-broker/internal/provider"
)

//go:embed default_providers.yaml
var defaultCatalog []byte

type catalogFile struct {
	Providers []provider.Spec `yaml:"providers"`
}

// DefaultCatalog returns the built-in provider list.
func DefaultCatalog() ([]provider.Spec, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a YAML provider catalog from path, or the built-in one
// when path is empty.
func LoadCatalog(path string) ([]provider.Spec, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) ([]provider.Spec, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: parse catalog: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, errors.New("config: catalog lists no providers")
	}
	seen := map[string]bool{}
	for i, spec := range file.Providers {
		name := provider.NormalizeName(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("config: provider #%d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("config: duplicate provider %q", name)
		}
		seen[name] = true
		switch provider.NormalizeName(spec.Kind) {
		case provider.KindOpenAI, provider.KindOpenRouter, provider.KindGemini, provider.KindHuggingFace:
		default:
			return nil, fmt.Errorf("config: provider %q has unknown kind %q", name, spec.Kind)
		}
		if strings.TrimSpace(spec.Model) == "" {
			return nil, fmt.Errorf("config: provider %q has no model", name)
		}
		if spec.DailyLimit < 0 {
			return nil, fmt.Errorf("config: provider %q has a negative daily_limit", name)
		}
		if strings.TrimSpace(spec.Credential) == "" {
			file.Providers[i].Credential = provider.NormalizeName(spec.Kind)
		}
	}
	return file.Providers, nil
}
