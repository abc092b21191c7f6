package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"response-broker/internal/clock"
)

// Quota tracks per-provider call counters against static daily ceilings.
// Counters reset together at every boundary of the configured location
// (UTC midnight by default).
type Quota struct {
	limits map[string]int
	loc    *time.Location
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	counters  map[string]int
	windowEnd time.Time
}

// NewQuota copies limits; providers absent from it are unlimited. A nil
// location means UTC.
func NewQuota(limits map[string]int, loc *time.Location, clk clock.Clock, logger *slog.Logger) *Quota {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	copied := make(map[string]int, len(limits))
	for k, v := range limits {
		if v > 0 {
			copied[k] = v
		}
	}
	return &Quota{
		limits:    copied,
		loc:       loc,
		clock:     clk,
		logger:    logger,
		counters:  map[string]int{},
		windowEnd: NextBoundary(clk.NowUTC(), loc),
	}
}

// NextBoundary returns the first midnight in loc strictly after now.
func NextBoundary(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func (q *Quota) Limit(name string) (int, bool) {
	l, ok := q.limits[name]
	return l, ok
}

// Check returns a *QuotaExceededError when name has reached its ceiling.
func (q *Quota) Check(name string) error {
	limit, ok := q.limits[name]
	if !ok {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	if used := q.counters[name]; used >= limit {
		return &QuotaExceededError{Name: name, Limit: limit, Used: used}
	}
	return nil
}

func (q *Quota) Increment(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	q.counters[name]++
}

// Usage returns a copy of the current counters.
func (q *Quota) Usage() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	out := make(map[string]int, len(q.counters))
	for k, v := range q.counters {
		out[k] = v
	}
	return out
}

// Reset zeroes every counter and starts a new window.
func (q *Quota) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked(q.clock.NowUTC())
}

// rollLocked resets counters when the current window has already ended, so
// a process that slept through a boundary never carries stale counts.
func (q *Quota) rollLocked() {
	now := q.clock.NowUTC()
	if now.Before(q.windowEnd) {
		return
	}
	q.resetLocked(now)
}

func (q *Quota) resetLocked(now time.Time) {
	for k := range q.counters {
		q.counters[k] = 0
	}
	q.windowEnd = NextBoundary(now, q.loc)
}

// RunDailyReset sleeps until each boundary and resets the counters, until
// ctx is done. The next boundary is always recomputed from the clock.
func (q *Quota) RunDailyReset(ctx context.Context) error {
	for {
		now := q.clock.NowUTC()
		timer := time.NewTimer(NextBoundary(now, q.loc).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			q.Reset()
			q.logger.Info("quota reset", "location", q.loc.String())
		}
	}
}
