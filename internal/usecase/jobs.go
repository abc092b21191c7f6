package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"response-broker/internal/clock"
)

const (
	HeartbeatPrompt  = "Heartbeat probe"
	InsightPrompt    = "Generate a productive insight."
	NothingToReflect = "Nothing to reflect on today."

	DefaultInsightChannel = "insight"

	reflectionPreamble = "Based on today's interactions, write a reflection on response patterns, strengths and where to improve:"
)

// Prober calls a single named provider directly.
type Prober interface {
	Names() []string
	Invoke(ctx context.Context, name, prompt string) (string, error)
}

type ProbeResult struct {
	Provider string
	OK       bool
	Err      error
}

type HealthReport struct {
	At      time.Time
	Results []ProbeResult
}

func (r HealthReport) Healthy() bool {
	for _, res := range r.Results {
		if !res.OK {
			return false
		}
	}
	return len(r.Results) > 0
}

func (r HealthReport) String() string {
	var sb strings.Builder
	sb.WriteString("Heartbeat ")
	sb.WriteString(r.At.Format("2006-01-02 15:04:05"))
	for _, res := range r.Results {
		status := "OK"
		if !res.OK {
			status = "ERROR"
		}
		fmt.Fprintf(&sb, "\n%s: %s", res.Provider, status)
	}
	return sb.String()
}

// Jobs holds the periodic operations run alongside foreground requests.
type Jobs struct {
	broker         *Broker
	prober         Prober
	loc            *time.Location
	clock          clock.Clock
	logger         *slog.Logger
	insightChannel string
}

// NewJobs builds the job set. loc is the timezone reports are rendered in
// and that decides what "today" means for Reflect; nil means UTC.
func NewJobs(broker *Broker, prober Prober, loc *time.Location, insightChannel string) (*Jobs, error) {
	if broker == nil {
		return nil, errors.New("usecase: broker must not be nil")
	}
	if prober == nil {
		return nil, errors.New("usecase: prober must not be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	insightChannel = strings.TrimSpace(insightChannel)
	if insightChannel == "" {
		insightChannel = DefaultInsightChannel
	}
	return &Jobs{
		broker:         broker,
		prober:         prober,
		loc:            loc,
		clock:          broker.clock,
		logger:         broker.logger,
		insightChannel: insightChannel,
	}, nil
}

// Heartbeat probes every provider concurrently, skipping quota, cache and the
// fallback order.
func (j *Jobs) Heartbeat(ctx context.Context) HealthReport {
	names := j.prober.Names()
	results := make([]ProbeResult, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, err := j.prober.Invoke(ctx, name, HeartbeatPrompt)
			results[i] = ProbeResult{Provider: name, OK: err == nil, Err: err}
		}(i, name)
	}
	wg.Wait()

	report := HealthReport{At: j.clock.NowUTC().In(j.loc), Results: results}
	for _, res := range results {
		if !res.OK {
			j.logger.Warn("heartbeat probe failed", "provider", res.Provider, "err", res.Err)
		}
	}
	j.logger.Info("heartbeat", "providers", len(results), "healthy", report.Healthy())
	return report
}

// Reflect asks for a reflection over today's inputs across all channels.
// Nothing is written to the store.
func (j *Jobs) Reflect(ctx context.Context) (RespondOutput, error) {
	records, err := j.broker.store.ReadAll(ctx)
	if err != nil {
		return RespondOutput{}, newError(ErrorStoreUnavailable, ReasonHistoryReadError, err)
	}

	y, m, d := j.clock.NowUTC().In(j.loc).Date()
	var lines []string
	for _, rec := range records {
		ry, rm, rd := rec.Timestamp.In(j.loc).Date()
		if ry == y && rm == m && rd == d {
			lines = append(lines, "- "+rec.Input)
		}
	}
	if len(lines) == 0 {
		return RespondOutput{Reply: NothingToReflect}, nil
	}

	prompt := reflectionPreamble + "\n\n" + strings.Join(lines, "\n")
	reply, err := j.broker.gen.GenerateRaw(ctx, prompt)
	if err != nil {
		return j.broker.failure("reflection", err), nil
	}
	return RespondOutput{Reply: reply}, nil
}

// Insight runs a normal exchange on the insight channel.
func (j *Jobs) Insight(ctx context.Context) (RespondOutput, error) {
	return j.broker.Respond(ctx, RespondInput{Channel: j.insightChannel, Message: InsightPrompt})
}

func (j *Jobs) InsightChannel() string { return j.insightChannel }
