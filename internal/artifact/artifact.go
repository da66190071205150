// Package artifact reads and writes the pipeline's on-disk artifacts.
//
// Writes are atomic: the payload goes to a temp file in the destination
// directory which is renamed into place, so readers see the old file or the
// new one and never a partial write.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteJSON encodes v as indented JSON without HTML escaping and writes it
// atomically to path, creating the parent directory if needed.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteFile copies r to path atomically. On failure the temp file is removed
// and any existing file at path is left untouched.
func WriteFile(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ragpipe-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()

	if copyErr != nil {
		_ = os.Remove(tmpName)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return closeErr
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadJSON decodes the file at path into v. A missing file is not an error:
// found is false and v is untouched.
func ReadJSON(path string, v any) (found bool, err error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// Exists reports whether every path exists. A directory counts only when it
// has at least one entry, since bootstrap creates artifact directories empty.
// It is true for an empty list.
func Exists(paths ...string) bool {
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return false
		}
		if fi.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil || len(entries) == 0 {
				return false
			}
		}
	}
	return true
}

// Remove deletes each path, files and directories alike. Missing paths are
// ignored. It returns the first error after attempting all paths.
func Remove(paths ...string) error {
	var first error
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil && first == nil {
			first = fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return first
}
