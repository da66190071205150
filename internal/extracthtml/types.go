package extracthtml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Fixed item fields.
const (
	SourceWebScraped = "web_scraped"
	ScrapedAtLayout  = "2006-01-02 15:04:05"

	keySource    = "source"
	keyScrapedAt = "scraped_at"
)

// FieldValue is one extracted field.
type FieldValue struct {
	Name  string
	Value string
}

// Item is one listing entry. Fields keep extraction order; JSON encodes the
// item as a flat object: source, scraped_at, then the fields.
type Item struct {
	Source    string
	ScrapedAt string
	Fields    []FieldValue
}

// Get returns the value of the named field.
func (it Item) Get(name string) (string, bool) {
	for _, f := range it.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the named field, or appends it.
func (it *Item) Set(name, value string) {
	for i := range it.Fields {
		if it.Fields[i].Name == name {
			it.Fields[i].Value = value
			return
		}
	}
	it.Fields = append(it.Fields, FieldValue{Name: name, Value: value})
}

// Populated counts non-empty fields, not counting source and scraped_at.
func (it Item) Populated() int {
	n := 0
	for _, f := range it.Fields {
		if strings.TrimSpace(f.Value) != "" {
			n++
		}
	}
	return n
}

func (it Item) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	// Encoder.Encode appends a newline after each value.
	writeString := func(s string) error {
		if err := enc.Encode(s); err != nil {
			return err
		}
		buf.Truncate(buf.Len() - 1)
		return nil
	}
	writePair := func(k, v string, first bool) error {
		if !first {
			buf.WriteByte(',')
		}
		if err := writeString(k); err != nil {
			return err
		}
		buf.WriteByte(':')
		return writeString(v)
	}

	buf.WriteByte('{')
	if err := writePair(keySource, it.Source, true); err != nil {
		return nil, err
	}
	if err := writePair(keyScrapedAt, it.ScrapedAt, false); err != nil {
		return nil, err
	}
	for _, f := range it.Fields {
		if f.Name == keySource || f.Name == keyScrapedAt {
			continue
		}
		if err := writePair(f.Name, f.Value, false); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat object, keeping key order. Non-string scalars are
// kept as their JSON text; nulls are dropped.
func (it *Item) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("item: expected object, got %v", tok)
	}

	out := Item{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("item: field %q: %w", key, err)
		}
		val, keep, err := scalarText(raw)
		if err != nil {
			return fmt.Errorf("item: field %q: %w", key, err)
		}
		if !keep {
			continue
		}

		switch key {
		case keySource:
			out.Source = val
		case keyScrapedAt:
			out.ScrapedAt = val
		default:
			out.Fields = append(out.Fields, FieldValue{Name: key, Value: val})
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*it = out
	return nil
}

func scalarText(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "", false, nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case raw[0] == '{' || raw[0] == '[':
		return "", false, fmt.Errorf("nested values are not supported")
	default:
		return string(raw), true, nil
	}
}

// PageResult is the outcome of extracting one fetched page.
type PageResult struct {
	// Containers is how many elements matched the container selector.
	Containers int

	// Items are the kept items in DOM order.
	Items []Item
}
