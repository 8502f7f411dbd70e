// Package retry runs a unit of work over an ordered ladder of strength levels,
// typically models from cheapest to most capable.
package retry

import (
	"context"
	"errors"
	"fmt"

	"labflow/internal/util"
)

// Outcome describes the attempt that produced the returned value.
type Outcome[T any] struct {
	Value    T
	Level    string
	Attempts int
	// Accepted is false when the ladder ran out and Value is the last rejected result.
	Accepted bool
}

// ErrNoLevels is returned when the ladder is empty.
var ErrNoLevels = errors.New("retry: no strength levels configured")

// Escalate tries levels in order and stops at the first value accept approves.
// A nil accept approves every value. Errors for which util.Escalatable is false
// stop the loop immediately. When every level is used up, the most recent value
// is returned unaccepted if any attempt produced one, otherwise the last error.
//
// attempt receives the level and its 1-based attempt number.
func Escalate[T any](ctx context.Context, levels []string, attempt func(ctx context.Context, level string, n int) (T, error), accept func(T) bool) (Outcome[T], error) {
	if len(levels) == 0 {
		return Outcome[T]{}, ErrNoLevels
	}

	var (
		last    Outcome[T]
		haveVal bool
		lastErr error
	)
	for i, level := range levels {
		if err := ctx.Err(); err != nil {
			return Outcome[T]{Attempts: i}, err
		}
		n := i + 1
		v, err := attempt(ctx, level, n)
		if err != nil {
			lastErr = err
			if !util.Escalatable(err) {
				return Outcome[T]{Level: level, Attempts: n}, err
			}
			continue
		}
		if accept == nil || accept(v) {
			return Outcome[T]{Value: v, Level: level, Attempts: n, Accepted: true}, nil
		}
		last = Outcome[T]{Value: v, Level: level, Attempts: n}
		haveVal = true
	}

	if haveVal {
		last.Attempts = len(levels)
		return last, nil
	}
	return Outcome[T]{Level: levels[len(levels)-1], Attempts: len(levels)},
		fmt.Errorf("all %d attempts failed: %w", len(levels), lastErr)
}
