// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package storage reads and writes the pipeline's staging files:
// line-delimited JSON streams and pretty-printed JSON reports.
package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/kawidev/knowledge-gate/pkg/types"
)

// ReadValues reads a JSONL file into loose values, skipping blank lines.
// A missing file reads as empty.
func ReadValues(path string) ([]types.Value, error) {
	return ReadLines(path, types.ParseJSON)
}

// ReadJSONL reads a JSONL file, decoding each line into a T.
func ReadJSONL[T any](path string) ([]T, error) {
	return ReadLines(path, func(line []byte) (T, error) {
		var row T
		err := json.Unmarshal(line, &row)
		return row, err
	})
}

// ReadLines reads a JSONL file with a custom line decoder. Malformed
// lines fail the read and name their line number.
func ReadLines[T any](path string, decode func([]byte) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	rows := []T{}
	r := bufio.NewReader(f)
	for n := 1; ; n++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, errors.Wrapf(readErr, "reading %s", path)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			row, err := decode(trimmed)
			if err != nil {
				return nil, errors.Wrapf(err, "%s line %d", path, n)
			}
			rows = append(rows, row)
		}
		if readErr == io.EOF {
			return rows, nil
		}
	}
}

// WriteJSONL replaces path with one JSON document per row and returns the
// number of rows written.
func WriteJSONL[T any](path string, rows []T) (int, error) {
	return writeLines(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, rows)
}

// AppendJSONL appends rows to path, creating it when needed.
func AppendJSONL[T any](path string, rows []T) (int, error) {
	return writeLines(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, rows)
}

func writeLines[T any](path string, flag int, rows []T) (int, error) {
	if err := ensureParent(path); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			f.Close()
			return i, errors.Wrapf(err, "encoding row %d of %s", i, path)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return 0, errors.Wrapf(err, "closing %s", path)
	}
	return len(rows), nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(path string, v any) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// ReadJSON decodes a JSON file into v. It reports false without error when
// the file does not exist.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decoding %s", path)
	}
	return true, nil
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	return nil
}
