package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	BackendDynamo = "dynamodb"
	BackendBolt   = "bolt"

	DefaultSystemPrompt = "You are Kaizen: an autonomous assistant, direct and slightly sarcastic."
	DefaultBoltPath     = "data/broker.bolt"
)

// Config is the process configuration, read from the environment once at
// startup.
type Config struct {
	MaxContextChars    int
	ProviderTimeout    time.Duration
	ResetLocation      *time.Location
	ReflectionLocation *time.Location
	StoreBackend       string
	StateTable         string
	BoltPath           string
	ParamPrefix        string
	ProvidersFile      string
	SystemPrompt       string
	InsightChannel     string
}

// Load reads Config through getenv (os.Getenv in production).
func Load(getenv func(string) string) (Config, error) {
	if getenv == nil {
		return Config{}, errors.New("config: getenv must not be nil")
	}
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		MaxContextChars: envInt(getenv, "MAX_CONTEXT_CHARS", 4000),
		ProviderTimeout: time.Duration(envInt(getenv, "PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		StoreBackend:    strings.ToLower(env("STORE_BACKEND", BackendDynamo)),
		StateTable:      env("STATE_TABLE", ""),
		BoltPath:        env("BOLT_PATH", DefaultBoltPath),
		ParamPrefix:     strings.TrimRight(env("PARAM_PREFIX", ""), "/"),
		ProvidersFile:   env("PROVIDERS_FILE", ""),
		SystemPrompt:    env("SYSTEM_PROMPT", DefaultSystemPrompt),
		InsightChannel:  env("INSIGHT_CHANNEL", "insight"),
	}

	var err error
	if cfg.ResetLocation, err = loadLocation("RESET_TIMEZONE", env("RESET_TIMEZONE", "UTC")); err != nil {
		return Config{}, err
	}
	if cfg.ReflectionLocation, err = loadLocation("REFLECTION_TIMEZONE", env("REFLECTION_TIMEZONE", "America/Sao_Paulo")); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case BackendDynamo:
		if cfg.StateTable == "" {
			return Config{}, errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	case BackendBolt:
	default:
		return Config{}, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func loadLocation(key, name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", key, err)
	}
	return loc, nil
}

// envInt returns def when key is unset, malformed or not positive.
func envInt(getenv func(string) string, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
