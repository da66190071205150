// Package index merges the pipeline artifacts, embeds them and serves
// similarity search over the stored vectors.
package index

import (
	"encoding/json"
	"fmt"

	"ragpipe/internal/artifact"
	"ragpipe/internal/record"
)

// ChunksKey holds the unstructured chunks inside the combined data.
const ChunksKey = "unstructured_chunks"

// Sources are the artifact paths read by the index stage.
type Sources struct {
	Scraped      string
	Structured   string
	Unstructured string
}

// Inputs are the decoded artifacts. A missing file decodes to empty.
type Inputs struct {
	Scraped      record.Record
	Structured   record.Record
	Unstructured []json.RawMessage
}

// Load reads the three artifacts.
func Load(src Sources) (Inputs, error) {
	var in Inputs
	if _, err := artifact.ReadJSON(src.Scraped, &in.Scraped); err != nil {
		return Inputs{}, fmt.Errorf("load scraped: %w", err)
	}
	if _, err := artifact.ReadJSON(src.Structured, &in.Structured); err != nil {
		return Inputs{}, fmt.Errorf("load structured: %w", err)
	}
	if _, err := artifact.ReadJSON(src.Unstructured, &in.Unstructured); err != nil {
		return Inputs{}, fmt.Errorf("load unstructured: %w", err)
	}
	return in, nil
}

// Combine merges scraped then structured by key. When both the current and
// incoming values are lists they are concatenated; otherwise the incoming
// value replaces. Non-empty chunks are stored under ChunksKey.
func Combine(in Inputs) (record.Record, error) {
	out := record.Record{}
	for _, src := range []record.Record{in.Scraped, in.Structured} {
		for _, f := range src {
			cur, ok := out.Get(f.Key)
			if ok && record.IsArray(cur) && record.IsArray(f.Value) {
				joined, err := concatArrays(cur, f.Value)
				if err != nil {
					return nil, fmt.Errorf("combine %s: %w", f.Key, err)
				}
				out.Set(f.Key, joined)
				continue
			}
			out.Set(f.Key, f.Value)
		}
	}
	if len(in.Unstructured) > 0 {
		b, err := json.Marshal(in.Unstructured)
		if err != nil {
			return nil, err
		}
		out.Set(ChunksKey, b)
	}
	return out, nil
}

func concatArrays(a, b json.RawMessage) (json.RawMessage, error) {
	var left, right []json.RawMessage
	if err := json.Unmarshal(a, &left); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &right); err != nil {
		return nil, err
	}
	return json.Marshal(append(left, right...))
}
