// Package scheduler runs per-file jobs with a concurrency bound and a soft time budget.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultMaxConcurrent = 3
	DefaultMaxDuration   = 50 * time.Second

	// SoftDeadlineFraction of MaxDuration after which no new job is admitted.
	SoftDeadlineFraction = 0.8
)

// Budget is the shared time allowance for one scheduler run.
type Budget struct {
	Start time.Time
	Max   time.Duration
	now   func() time.Time
}

func NewBudget(d time.Duration) Budget {
	return Budget{Start: time.Now(), Max: d}
}

func (b Budget) Elapsed() time.Duration {
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	return now().Sub(b.Start)
}

// Exhausted reports whether the soft deadline has passed. A zero Max never exhausts.
func (b Budget) Exhausted() bool {
	if b.Max <= 0 {
		return false
	}
	return b.Elapsed() > time.Duration(float64(b.Max)*SoftDeadlineFraction)
}

type Options struct {
	MaxConcurrent int
	MaxDuration   time.Duration
	Logger        *slog.Logger
}

// Job processes one id. It must report failures in its result rather than panic.
type Job[R any] func(ctx context.Context, id string, budget Budget) R

type Output[R any] struct {
	Results []R
	// TimedOut is true when admission stopped at the soft deadline.
	TimedOut bool
	// Admitted counts the ids that were started.
	Admitted int
}

// Run admits jobs up to MaxConcurrent at a time, in id order. The soft deadline is
// checked on every iteration while ids remain or jobs are in flight; once it trips
// TimedOut is set, no further ids are admitted, and every running job is waited for. Jobs get a context that is not
// cancelled with ctx, so in-flight provider calls finish.
func Run[R any](ctx context.Context, ids []string, opts Options, job Job[R]) Output[R] {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	budget := NewBudget(opts.MaxDuration)
	jobCtx := context.WithoutCancel(ctx)
	done := make(chan R, len(ids))
	out := Output[R]{Results: make([]R, 0, len(ids))}

	next, inFlight := 0, 0
	for next < len(ids) || inFlight > 0 {
		if budget.Exhausted() || (next < len(ids) && ctx.Err() != nil) {
			out.TimedOut = true
			logger.Warn("soft deadline reached, draining in-flight files",
				"admitted", next, "remaining", len(ids)-next, "elapsed_ms", budget.Elapsed().Milliseconds())
			break
		}
		for inFlight < opts.MaxConcurrent && next < len(ids) {
			id := ids[next]
			next++
			inFlight++
			go func() { done <- job(jobCtx, id, budget) }()
		}
		out.Results = append(out.Results, <-done)
		inFlight--
	}

	for ; inFlight > 0; inFlight-- {
		out.Results = append(out.Results, <-done)
	}
	out.Admitted = next
	return out
}
