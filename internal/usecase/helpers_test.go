package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"response-broker/internal/clock"
	"response-broker/internal/domain"
	"response-broker/internal/fallback"
)

// memStore rewrites its whole log on every append, like the document-backed
// stores, so unserialized writers lose updates.
type memStore struct {
	mu        sync.Mutex
	records   []domain.ExchangeRecord
	appends   int
	readErr   error
	appendErr error
	appendCtx []error
}

func (m *memStore) ReadChannel(_ context.Context, channel string) ([]domain.ExchangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []domain.ExchangeRecord
	for _, r := range m.records {
		if r.Channel == channel {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ReadAll(_ context.Context) ([]domain.ExchangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return append([]domain.ExchangeRecord(nil), m.records...), nil
}

func (m *memStore) Append(ctx context.Context, rec domain.ExchangeRecord) error {
	m.mu.Lock()
	m.appends++
	m.appendCtx = append(m.appendCtx, ctx.Err())
	if m.appendErr != nil {
		m.mu.Unlock()
		return m.appendErr
	}
	doc := append([]domain.ExchangeRecord(nil), m.records...)
	m.mu.Unlock()

	runtime.Gosched()
	doc = append(doc, rec)

	m.mu.Lock()
	m.records = doc
	m.mu.Unlock()
	return nil
}

func (m *memStore) appendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func (m *memStore) snapshot() []domain.ExchangeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ExchangeRecord(nil), m.records...)
}

// scriptedBackend is a fallback.Backend whose providers are plain funcs.
type scriptedBackend struct {
	mu      sync.Mutex
	names   []string
	fns     map[string]func(string) (string, error)
	calls   int
	prompts map[string][]string
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		fns:     map[string]func(string) (string, error){},
		prompts: map[string][]string{},
	}
}

func (b *scriptedBackend) add(name string, fn func(string) (string, error)) *scriptedBackend {
	b.names = append(b.names, name)
	b.fns[name] = fn
	return b
}

func (b *scriptedBackend) Names() []string {
	return append([]string(nil), b.names...)
}

func (b *scriptedBackend) Invoke(ctx context.Context, name, prompt string) (string, error) {
	b.mu.Lock()
	b.calls++
	b.prompts[name] = append(b.prompts[name], prompt)
	fn := b.fns[name]
	b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fn(prompt)
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *scriptedBackend) lastPrompt(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.prompts[name]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func alwaysFails(string) (string, error) { return "", errors.New("unavailable") }

func echoOK(prompt string) (string, error) { return "ok:" + prompt, nil }

// stubGen is a Generator with a fixed answer.
type stubGen struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
	hook    func()
}

func (g *stubGen) GenerateRaw(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	hook := g.hook
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return g.reply, g.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 10, 15, 15, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) clock.Clock {
	return clock.Func(func() time.Time { return t })
}

func newTestSequencer(t *testing.T, backend fallback.Backend, limits map[string]int) *fallback.Sequencer {
	t.Helper()
	q := fallback.NewQuota(limits, time.UTC, fixedClock(testNow), discardLogger())
	seq, err := fallback.NewSequencer(backend, q, fallback.NewCache(), discardLogger())
	require.NoError(t, err)
	return seq
}

func newTestBroker(t *testing.T, store *memStore, gen Generator, opts ...BrokerOption) *Broker {
	t.Helper()
	builder, err := NewContextBuilder(store, "You are a helpful assistant.", 4000)
	require.NoError(t, err)
	opts = append([]BrokerOption{WithLogger(discardLogger()), WithClock(fixedClock(testNow))}, opts...)
	b, err := NewBroker(builder, gen, store, opts...)
	require.NoError(t, err)
	return b
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, code, ucErr.Code)
	require.Equal(t, reason, ucErr.Reason)
}
