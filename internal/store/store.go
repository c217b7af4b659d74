// Package store implements the file primitives every AEM artifact is built on:
// atomic whole-file replacement, append-only JSONL journals, and tolerant readers.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StorageError wraps a failed read or write of a project artifact.
// It is always fatal to the current run.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a *StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs it and renames it over path
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &StorageError{Op: "create temp", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &StorageError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &StorageError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &StorageError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// WriteJSON replaces path with the indented JSON encoding of v
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &StorageError{Op: "marshal", Path: path, Err: err}
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// ReadJSON decodes path into v. A missing file returns (false, nil).
func ReadJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &StorageError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &StorageError{Op: "decode", Path: path, Err: err}
	}
	return true, nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteJSONL atomically replaces path with one JSON document per line
func WriteJSONL[T any](path string, items []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return &StorageError{Op: "marshal", Path: path, Err: err}
		}
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// AppendJSONL appends items to a journal. The whole batch goes out in one write.
func AppendJSONL[T any](path string, items ...T) error {
	if len(items) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return &StorageError{Op: "marshal", Path: path, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return &StorageError{Op: "open", Path: path, Err: err}
	}
	data := buf.Bytes()
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			// close off a partial trailing record so it stays a single bad line
			data = append([]byte{'\n'}, data...)
		}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &StorageError{Op: "append", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// ReadJSONL reads an append-only journal. Blank and malformed lines are
// skipped so a partially written record never blocks readers.
func ReadJSONL[T any](path string) ([]T, error) {
	return readJSONL[T](path, false)
}

// ReadJSONLStrict reads a file that is rewritten as a whole. Only a malformed
// final line is skipped; a bad line followed by more records is a decode
// StorageError, so a later rewrite can never drop it.
func ReadJSONLStrict[T any](path string) ([]T, error) {
	return readJSONL[T](path, true)
}

func readJSONL[T any](path string, strict bool) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	var (
		items   []T
		bad     error
		lineNum int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if strict && bad != nil {
			return nil, &StorageError{Op: "decode", Path: path, Err: bad}
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			bad = fmt.Errorf("line %d: %w", lineNum, err)
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, &StorageError{Op: "scan", Path: path, Err: err}
	}
	return items, nil
}
