// Package structured extracts typed records from known PDFs with an LLM and
// writes them as one JSON artifact keyed by document type.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"ragpipe/internal/artifact"
	"ragpipe/internal/metrics"
	"ragpipe/internal/pdftext"
	"ragpipe/internal/record"
)

// SchemaExtractor turns text into a model response following systemPrompt.
type SchemaExtractor interface {
	Extract(ctx context.Context, text, systemPrompt string) (string, error)
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Output maps a DocType.Field to its extracted records.
type Output map[string][]record.Record

// Stage runs structured extraction over Dir and writes Output.
type Stage struct {
	Dir       string
	Output    string
	Pages     pdftext.Loader
	Extractor SchemaExtractor

	// DocTypes defaults to DefaultDocTypes.
	DocTypes []DocType
	Logger   Logger
}

// Run extracts every known PDF in Dir and writes the artifact. Files with no
// DocType are skipped; a file that fails is logged and skipped too, so one
// bad PDF never loses its siblings.
func (s *Stage) Run(ctx context.Context) error {
	out, err := s.Process(ctx)
	if err != nil {
		return err
	}
	if err := artifact.WriteJSON(s.Output, out); err != nil {
		return err
	}
	for field, recs := range out {
		s.logf("stage=structured section=%s items=%d", field, len(recs))
	}
	return nil
}

// Process extracts without writing.
func (s *Stage) Process(ctx context.Context) (Output, error) {
	files, err := pdftext.List(s.Dir)
	if err != nil {
		return nil, err
	}
	types := s.DocTypes
	if types == nil {
		types = DefaultDocTypes
	}
	byFile := lookup(types)

	out := Output{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		dt, ok := byFile[name]
		if !ok {
			s.logf("stage=structured file=%s status=skipped reason=no_doc_type", name)
			continue
		}

		start := time.Now()
		recs, err := s.extractFile(ctx, path, dt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logf("stage=structured file=%s status=error err=%v", name, err)
			continue
		}
		out[dt.Field] = recs
		metrics.RecordItems("structured", len(recs))
		s.logf("stage=structured file=%s ok items=%d duration=%s", name, len(recs), time.Since(start).Truncate(time.Millisecond))
	}
	return out, nil
}

func (s *Stage) extractFile(ctx context.Context, path string, dt DocType) ([]record.Record, error) {
	pages, err := s.Pages.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	resp, err := s.Extractor.Extract(ctx, pdftext.JoinText(pages), dt.SystemPrompt())
	if err != nil {
		return nil, err
	}
	return ParseResponse(resp, dt)
}

// ErrMissingField is returned when the response lacks the DocType's list.
var ErrMissingField = errors.New("response has no extraction field")

// ParseResponse decodes a model response for dt. Code fences are removed,
// the dt.Field list is required, and every declared property is coerced to
// a string ("" when absent). Undeclared properties are dropped.
func ParseResponse(resp string, dt DocType) ([]record.Record, error) {
	var top record.Record
	if err := json.Unmarshal([]byte(StripFences(resp)), &top); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	raw, ok := top.Get(dt.Field)
	if !ok || !record.IsArray(raw) {
		return nil, fmt.Errorf("%w %q", ErrMissingField, dt.Field)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", dt.Field, err)
	}

	out := make([]record.Record, 0, len(items))
	for i, it := range items {
		var obj record.Record
		if err := json.Unmarshal(it, &obj); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", dt.Field, i, err)
		}
		rec := make(record.Record, 0, len(dt.Properties))
		for _, p := range dt.Properties {
			v, _ := obj.Get(p.Name)
			rec = append(rec, record.Field{Key: p.Name, Value: record.String(record.Text(v))})
		}
		out = append(out, rec)
	}
	return out, nil
}

// StripFences removes a surrounding Markdown code fence (``` or ```json).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	_, rest, ok := strings.Cut(s, "\n")
	if !ok {
		return strings.Trim(s, "`")
	}
	if i := strings.LastIndex(rest, "```"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func (s *Stage) logf(format string, v ...any) {
	if s.Logger == nil {
		log.New(io.Discard, "", 0).Printf(format, v...)
		return
	}
	s.Logger.Printf(format, v...)
}
