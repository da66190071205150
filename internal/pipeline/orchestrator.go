package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"ragpipe/internal/artifact"
	"ragpipe/internal/metrics"
)

// Logger is the minimal logging interface used by the orchestrator.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// EventKind identifies an orchestrator event.
type EventKind string

const (
	EventCleaned    EventKind = "cleaned"
	EventInventory  EventKind = "inventory"
	EventStageStart EventKind = "stage_start"
	EventStageDone  EventKind = "stage_done"
)

// Event is emitted as the run progresses. Result is set for
// EventStageDone, Paths for EventCleaned and Counts for EventInventory.
type Event struct {
	Kind   EventKind
	Stage  Stage
	Result StageResult
	Paths  []string
	Counts map[string]int
}

// EventFunc receives events. A nil EventFunc discards them.
type EventFunc func(Event)

// Options select what a run does.
type Options struct {
	Mode    Mode
	Rebuild bool
}

// Orchestrator runs stage definitions in the fixed order.
type Orchestrator struct {
	Stages []StageDef

	// Dirs are created before any stage runs.
	Dirs []string

	// PDFDirs are inventoried (count of *.pdf) and logged before running.
	PDFDirs []string

	Runner StageRunner
	Logger Logger
	Events EventFunc
}

// Run cleans the artifacts the run will regenerate, bootstraps directories,
// then executes the selected stages, stopping at the first failure.
//
// In ModeFull without Rebuild a stage whose artifacts all exist is skipped.
// Rebuild deletes the artifacts of every stage. A partial mode deletes the
// artifacts of its own stages.
//
// The returned error covers setup problems only; stage failures are in the
// Report.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Report, error) {
	logf := o.logger()
	mode := opts.Mode
	if mode == "" {
		mode = ModeFull
	}
	rep := Report{Mode: mode, Rebuild: opts.Rebuild}

	selected := mode.Stages()
	defs, err := o.lookup(selected)
	if err != nil {
		return rep, err
	}

	if err := o.clean(mode, opts.Rebuild); err != nil {
		return rep, err
	}
	if err := o.bootstrap(); err != nil {
		return rep, err
	}

	runStart := time.Now()
	for _, def := range defs {
		if mode == ModeFull && !opts.Rebuild && len(def.Artifacts) > 0 && artifact.Exists(def.Artifacts...) {
			res := StageResult{Stage: def.Stage, Status: StatusSkipped}
			rep.Results = append(rep.Results, res)
			metrics.RecordStage(string(def.Stage), string(StatusSkipped), 0)
			logf("stage=%s status=skipped reason=artifacts_present", def.Stage)
			o.emit(Event{Kind: EventStageDone, Stage: def.Stage, Result: res})
			continue
		}

		o.emit(Event{Kind: EventStageStart, Stage: def.Stage})
		res := o.Runner.Run(ctx, def)
		rep.Results = append(rep.Results, res)
		metrics.RecordStage(string(def.Stage), string(res.Status), res.Duration)
		o.emit(Event{Kind: EventStageDone, Stage: def.Stage, Result: res})

		if res.Status == StatusFailed {
			logf("stage=%s status=failed code=%d duration=%s err=%v", def.Stage, res.Code, res.Duration.Truncate(time.Millisecond), res.Err)
			return rep, nil
		}
		logf("stage=%s ok duration=%s", def.Stage, res.Duration.Truncate(time.Millisecond))
	}

	logf("stage=pipeline ok mode=%s rebuild=%t duration=%s", mode, opts.Rebuild, durMS(runStart))
	return rep, nil
}

func (o *Orchestrator) lookup(stages []Stage) ([]StageDef, error) {
	byStage := make(map[Stage]StageDef, len(o.Stages))
	for _, d := range o.Stages {
		byStage[d.Stage] = d
	}
	out := make([]StageDef, 0, len(stages))
	for _, s := range stages {
		d, ok := byStage[s]
		if !ok {
			return nil, fmt.Errorf("pipeline: no definition for stage %q", s)
		}
		out = append(out, d)
	}
	return out, nil
}

// clean removes the artifacts about to be regenerated. ModeFull without
// Rebuild removes nothing.
func (o *Orchestrator) clean(mode Mode, rebuild bool) error {
	var stages []Stage
	switch {
	case rebuild:
		stages = Order
	case mode != ModeFull:
		stages = mode.Stages()
	default:
		return nil
	}

	var paths []string
	for _, d := range o.Stages {
		for _, s := range stages {
			if d.Stage == s {
				paths = append(paths, d.Artifacts...)
			}
		}
	}
	if len(paths) == 0 {
		return nil
	}

	if err := artifact.Remove(paths...); err != nil {
		return fmt.Errorf("pipeline: clean: %w", err)
	}
	o.logger()("stage=clean removed=%d mode=%s rebuild=%t", len(paths), mode, rebuild)
	o.emit(Event{Kind: EventCleaned, Paths: paths})
	return nil
}

// bootstrap creates the working directories and logs the PDF inventory.
func (o *Orchestrator) bootstrap() error {
	logf := o.logger()
	for _, d := range o.Dirs {
		if d == "" {
			continue
		}
		if _, err := os.Stat(d); err == nil {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("pipeline: create %s: %w", d, err)
		}
		logf("stage=prerequisites created=%s", d)
	}

	if len(o.PDFDirs) == 0 {
		return nil
	}
	counts := make(map[string]int, len(o.PDFDirs))
	for _, d := range o.PDFDirs {
		n, err := CountPDFs(d)
		if err != nil {
			return fmt.Errorf("pipeline: inventory %s: %w", d, err)
		}
		counts[d] = n
		logf("stage=prerequisites dir=%s pdfs=%d", d, n)
	}
	o.emit(Event{Kind: EventInventory, Counts: counts})
	return nil
}

// CountPDFs returns the number of *.pdf files directly in dir. A missing
// directory counts as zero.
func CountPDFs(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (o *Orchestrator) emit(e Event) {
	if o.Events != nil {
		o.Events(e)
	}
}

func (o *Orchestrator) logger() func(format string, v ...any) {
	if o.Logger == nil {
		l := log.New(io.Discard, "", 0)
		return l.Printf
	}
	return o.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
