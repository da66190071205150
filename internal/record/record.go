// Package record is an ordered JSON object.
//
// encoding/json decodes objects into maps and forgets key order. The
// pipeline artifacts are written and read back in document order (field
// order drives document text), so they go through Record instead.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Field is one member of an object. Value is raw JSON.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Record is a JSON object with its key order preserved. Duplicate keys are
// kept as read; Get returns the first.
type Record []Field

// Get returns the raw value of key.
func (r Record) Get(key string) (json.RawMessage, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of key or appends it.
func (r *Record) Set(key string, v json.RawMessage) {
	for i := range *r {
		if (*r)[i].Key == key {
			(*r)[i].Value = v
			return
		}
	}
	*r = append(*r, Field{Key: key, Value: v})
}

// SetString sets key to the JSON string s.
func (r *Record) SetString(key, s string) {
	r.Set(key, String(s))
}

// String returns s encoded as a JSON string, without HTML escaping.
func String(s string) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// StringValue reports the string held by v, if v is a JSON string.
func StringValue(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || v[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// Text renders v as plain text: strings unquoted, null empty, anything else
// as compact JSON.
func Text(v json.RawMessage) string {
	if s, ok := StringValue(v); ok {
		return s
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// IsArray reports whether v is a JSON array.
func IsArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

// IsObject reports whether v is a JSON object.
func IsObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(String(f.Key))
		buf.WriteByte(':')
		v := bytes.TrimSpace(f.Value)
		if len(v) == 0 {
			v = []byte("null")
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var errNotObject = errors.New("record: not a JSON object")

func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}

	out := Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("record: value of %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Keys returns the keys in order.
func (r Record) Keys() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Key
	}
	return out
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Lines renders the non-blank string fields as "key: value" lines.
func (r Record) Lines() string {
	var parts []string
	for _, f := range r {
		s, ok := StringValue(f.Value)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		parts = append(parts, f.Key+": "+s)
	}
	return strings.Join(parts, "\n")
}
