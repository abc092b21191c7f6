package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"response-broker/internal/domain"
)

var brt = time.FixedZone("BRT", -3*3600)

func TestNewJobs_Validates(t *testing.T) {
	_, err := NewJobs(nil, newScriptedBackend(), nil, "")
	require.Error(t, err)

	b := newTestBroker(t, &memStore{}, &stubGen{})
	_, err = NewJobs(b, nil, nil, "")
	require.Error(t, err)

	j, err := NewJobs(b, newScriptedBackend(), nil, " ")
	require.NoError(t, err)
	require.Equal(t, DefaultInsightChannel, j.InsightChannel())
}

func TestHeartbeat_ProbesEveryProviderDirectly(t *testing.T) {
	backend := newScriptedBackend().add("gemini", echoOK).add("mistral", alwaysFails).add("openrouter", echoOK)
	seq := newTestSequencer(t, backend, map[string]int{"gemini": 1})
	b := newTestBroker(t, &memStore{}, seq)
	j, err := NewJobs(b, backend, brt, "")
	require.NoError(t, err)

	report := j.Heartbeat(context.Background())
	require.Len(t, report.Results, 3)
	require.Equal(t, "gemini", report.Results[0].Provider)
	require.True(t, report.Results[0].OK)
	require.False(t, report.Results[1].OK)
	require.Error(t, report.Results[1].Err)
	require.False(t, report.Healthy())
	require.Equal(t, HeartbeatPrompt, backend.lastPrompt("openrouter"))

	require.Equal(t,
		"Heartbeat 2026-10-15 12:00:00\ngemini: OK\nmistral: ERROR\nopenrouter: OK",
		report.String(),
	)
	require.Empty(t, seq.Usage(), "probes bypass quota accounting")
}

func TestHealthReport_EmptyIsUnhealthy(t *testing.T) {
	require.False(t, HealthReport{}.Healthy())
	require.True(t, HealthReport{Results: []ProbeResult{{Provider: "a", OK: true}}}.Healthy())
}

func TestReflect_UsesTodayInReflectionZone(t *testing.T) {
	store := &memStore{records: []domain.ExchangeRecord{
		// 23:00 on the 14th in BRT.
		{Timestamp: time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC), Channel: "c1", Input: "late last night"},
		{Timestamp: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), Channel: "c1", Input: "morning"},
		{Timestamp: time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC), Channel: "c2", Input: "afternoon"},
	}}
	gen := &stubGen{reply: "reflection"}
	b := newTestBroker(t, store, gen)
	j, err := NewJobs(b, newScriptedBackend(), brt, "")
	require.NoError(t, err)

	out, err := j.Reflect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "reflection", out.Reply)
	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	require.True(t, strings.HasSuffix(prompt, "\n\n- morning\n- afternoon"))
	require.NotContains(t, prompt, "late last night")
	require.Zero(t, store.appendCount())
}

func TestReflect_NothingToday(t *testing.T) {
	store := &memStore{records: []domain.ExchangeRecord{
		{Timestamp: testNow.Add(-48 * time.Hour), Channel: "c1", Input: "old"},
	}}
	gen := &stubGen{reply: "unused"}
	j, err := NewJobs(newTestBroker(t, store, gen), newScriptedBackend(), brt, "")
	require.NoError(t, err)

	out, err := j.Reflect(context.Background())
	require.NoError(t, err)
	require.Equal(t, NothingToReflect, out.Reply)
	require.Zero(t, gen.calls)
}

func TestReflect_ExhaustionReturnsSentinel(t *testing.T) {
	store := &memStore{records: []domain.ExchangeRecord{{Timestamp: testNow, Channel: "c1", Input: "x"}}}
	backend := newScriptedBackend().add("g", alwaysFails)
	j, err := NewJobs(newTestBroker(t, store, newTestSequencer(t, backend, nil)), backend, nil, "")
	require.NoError(t, err)

	out, err := j.Reflect(context.Background())
	require.NoError(t, err)
	require.True(t, out.Failed)
	require.True(t, IsFailureReply(out.Reply))
}

func TestReflect_StoreError(t *testing.T) {
	store := &memStore{readErr: errors.New("down")}
	j, err := NewJobs(newTestBroker(t, store, &stubGen{}), newScriptedBackend(), nil, "")
	require.NoError(t, err)

	_, err = j.Reflect(context.Background())
	expectError(t, err, ErrorStoreUnavailable, "history_read_error")
}

func TestInsight_PersistsOnInsightChannel(t *testing.T) {
	store := &memStore{}
	j, err := NewJobs(newTestBroker(t, store, &stubGen{reply: "ship small"}), newScriptedBackend(), nil, "kaizen-insight")
	require.NoError(t, err)

	out, err := j.Insight(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ship small", out.Reply)

	records := store.snapshot()
	require.Len(t, records, 1)
	require.Equal(t, "kaizen-insight", records[0].Channel)
	require.Equal(t, InsightPrompt, records[0].Input)
}
