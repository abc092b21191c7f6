package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"response-broker/internal/integrations/paramstore"
)

type fakeGetter struct {
	vals map[string]string
	err  error
	seen []string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.seen = append(f.seen, name)
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.vals[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", paramstore.ErrNotFound, name)
	}
	return v, nil
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "OPENAI_API_KEY", EnvVar("openai"))
	require.Equal(t, "HUGGINGFACE_API_TOKEN", EnvVar(" HuggingFace "))
	require.Equal(t, "MY_VENDOR_API_KEY", EnvVar("my-vendor"))
}

func TestEnvCredentials_Lookup(t *testing.T) {
	env := EnvCredentials{Getenv: func(k string) string {
		if k == "GEMINI_API_KEY" {
			return " g-key "
		}
		return ""
	}}
	v, err := env.Lookup(context.Background(), "gemini")
	require.NoError(t, err)
	require.Equal(t, "g-key", v)

	v, err = env.Lookup(context.Background(), "openai")
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestNewParamCredentials_Validates(t *testing.T) {
	_, err := NewParamCredentials(nil, "/p")
	require.Error(t, err)
	_, err = NewParamCredentials(&fakeGetter{}, " / ")
	require.Error(t, err)
}

func TestParamCredentials_Lookup(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{"/broker/providers/openai-token": `{"token":"sk-ssm"}`}}
	p, err := NewParamCredentials(g, "/broker/")
	require.NoError(t, err)

	v, err := p.Lookup(context.Background(), "openai")
	require.NoError(t, err)
	require.Equal(t, "sk-ssm", v)

	v, err = p.Lookup(context.Background(), "gemini")
	require.NoError(t, err, "missing parameter means absent credential")
	require.Empty(t, v)
}

func TestParamCredentials_Errors(t *testing.T) {
	p, err := NewParamCredentials(&fakeGetter{err: errors.New("ssm down")}, "/broker")
	require.NoError(t, err)
	_, err = p.Lookup(context.Background(), "openai")
	require.ErrorContains(t, err, "ssm down")

	p, err = NewParamCredentials(&fakeGetter{vals: map[string]string{"/broker/providers/openai-token": `{broken`}}, "/broker")
	require.NoError(t, err)
	_, err = p.Lookup(context.Background(), "openai")
	require.ErrorContains(t, err, "unmarshal")
}

func TestChainCredentials_FirstNonEmptyWins(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{"/b/providers/openai-token": `{"token":"from-ssm"}`}}
	p, err := NewParamCredentials(g, "/b")
	require.NoError(t, err)
	env := EnvCredentials{Getenv: func(k string) string {
		if k == "GEMINI_API_KEY" {
			return "from-env"
		}
		return ""
	}}
	chain := ChainCredentials{p, env}

	v, err := chain.Lookup(context.Background(), "openai")
	require.NoError(t, err)
	require.Equal(t, "from-ssm", v)

	v, err = chain.Lookup(context.Background(), "gemini")
	require.NoError(t, err)
	require.Equal(t, "from-env", v)

	v, err = chain.Lookup(context.Background(), "openrouter")
	require.NoError(t, err)
	require.Empty(t, v)
}

type fakeLister struct {
	fakeGetter
	listed map[string]string
	calls  int
}

func (f *fakeLister) ListByPath(_ context.Context, path string) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for k, v := range f.listed {
		if strings.HasPrefix(k, path+"/") {
			out[k] = v
		}
	}
	return out, nil
}

func TestParamCredentials_ListsOnce(t *testing.T) {
	l := &fakeLister{listed: map[string]string{
		"/b/providers/openai-token": `{"token":"sk-a"}`,
		"/b/providers/gemini-token": `{"token":" g "}`,
		"/other/openai-token":       `{"token":"wrong"}`,
	}}
	p, err := NewParamCredentials(l, "/b")
	require.NoError(t, err)

	for cred, want := range map[string]string{"openai": "sk-a", "gemini": "g", "openrouter": ""} {
		v, err := p.Lookup(context.Background(), cred)
		require.NoError(t, err)
		require.Equal(t, want, v, cred)
	}
	require.Equal(t, 1, l.calls)
	require.Empty(t, l.seen, "single-parameter reads are not used when listing is available")
}

func TestParamCredentials_ListError(t *testing.T) {
	l := &fakeLister{fakeGetter: fakeGetter{err: errors.New("access denied")}}
	p, err := NewParamCredentials(l, "/b")
	require.NoError(t, err)
	_, err = p.Lookup(context.Background(), "openai")
	require.ErrorContains(t, err, "access denied")
}
