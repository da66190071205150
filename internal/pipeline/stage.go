// Package pipeline sequences the ragpipe stages.
//
// The Orchestrator runs scrape, structured, unstructured and index in that
// order, skipping stages whose artifacts already exist, deleting the
// artifacts the selected mode is about to regenerate, and halting on the
// first failed stage. Each stage runs under a StageRunner which turns errors,
// panics and timeouts into a StageResult.
package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageScrape       Stage = "scrape"
	StageStructured   Stage = "structured"
	StageUnstructured Stage = "unstructured"
	StageIndex        Stage = "index"
)

// Order is the fixed execution order.
var Order = []Stage{StageScrape, StageStructured, StageUnstructured, StageIndex}

// Mode selects which stages run.
type Mode string

const (
	ModeFull           Mode = "full"
	ModeScrapeOnly     Mode = "scrape-only"
	ModePreprocessOnly Mode = "preprocess-only"
	ModeIndexOnly      Mode = "index-only"
)

// ParseMode accepts the mode names above; "" is ModeFull.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeFull, nil
	case ModeFull, ModeScrapeOnly, ModePreprocessOnly, ModeIndexOnly:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Stages returns the stages m runs, in execution order.
func (m Mode) Stages() []Stage {
	switch m {
	case ModeScrapeOnly:
		return []Stage{StageScrape}
	case ModePreprocessOnly:
		return []Stage{StageStructured, StageUnstructured}
	case ModeIndexOnly:
		return []Stage{StageIndex}
	default:
		return append([]Stage(nil), Order...)
	}
}

// StageFunc does the work of one stage.
type StageFunc func(ctx context.Context) error

// StageDef binds a stage to its work and the artifacts it owns.
type StageDef struct {
	Stage Stage

	// Artifacts are the files or directories the stage produces. A stage with
	// no artifacts is never considered cached.
	Artifacts []string

	Run StageFunc
}

// Status is the outcome of one stage.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageResult reports one stage. Code is 0 unless the stage failed.
type StageResult struct {
	Stage    Stage
	Status   Status
	Code     int
	Err      error
	Duration time.Duration
}

// StageError is a failed stage as an error.
type StageError struct {
	Stage Stage
	Code  int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (code %d): %v", e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Report is the outcome of a pipeline run.
type Report struct {
	Mode    Mode
	Rebuild bool
	Results []StageResult
}

// Failed returns the first failed result.
func (r Report) Failed() (StageResult, bool) {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return res, true
		}
	}
	return StageResult{}, false
}

// Err returns the first failure as a *StageError, or nil.
func (r Report) Err() error {
	res, ok := r.Failed()
	if !ok {
		return nil
	}
	return &StageError{Stage: res.Stage, Code: res.Code, Err: res.Err}
}

// ExitCode is 0 when no stage failed and the failed stage's code otherwise.
func (r Report) ExitCode() int {
	res, ok := r.Failed()
	if !ok {
		return 0
	}
	if res.Code == 0 {
		return 1
	}
	return res.Code
}
