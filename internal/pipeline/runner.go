package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrPanic wraps a recovered stage panic.
var ErrPanic = errors.New("stage panicked")

// finishGrace is how long Run still waits for a stage after ctx ends before
// abandoning it.
const finishGrace = 50 * time.Millisecond

// StageRunner executes one stage in its own goroutine.
type StageRunner struct {
	// Timeout bounds the stage. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Run executes def and reports the outcome. Errors, panics and timeouts all
// become a failed result with code 1; nothing is retried.
//
// When ctx ends before the stage returns, Run waits finishGrace for it and
// then reports the context error. Stage functions are expected to honour ctx.
func (r StageRunner) Run(ctx context.Context, def StageDef) StageResult {
	start := time.Now()
	res := StageResult{Stage: def.Stage}

	if def.Run == nil {
		res.Status, res.Code = StatusFailed, 1
		res.Err = fmt.Errorf("stage %s has no implementation", def.Stage)
		return res
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("%w: %v\n%s", ErrPanic, p, debug.Stack())
			}
		}()
		done <- def.Run(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// A stage that returned as ctx ended keeps its own outcome.
		select {
		case err = <-done:
		case <-time.After(finishGrace):
			err = ctx.Err()
		}
	}

	res.Duration = time.Since(start)
	if err != nil {
		res.Status, res.Code, res.Err = StatusFailed, 1, err
		return res
	}
	res.Status = StatusSucceeded
	return res
}
