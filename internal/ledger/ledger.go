// Package ledger implements the resume protocol over per-manifest JSONL
// output files: reading the set of completed work-unit keys and appending
// one record per finished page.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// KeySet is a set of completed work-unit keys.
type KeySet map[string]struct{}

// Has reports whether key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts key.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// Len returns the number of keys.
func (s KeySet) Len() int {
	return len(s)
}

// ReadKeys collects the page_key of every parseable line of path. Blank
// lines, malformed JSON and lines without a string page_key are skipped. A
// missing file yields an empty set and no error.
func ReadKeys(path string) (KeySet, error) {
	keys := KeySet{}

	f, err := os.Open(path) //nolint:gosec // G304: output path chosen by the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return keys, nil
		}
		return KeySet{}, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		if key, ok := pageKey(line); ok {
			keys.Add(key)
		}
		if readErr == io.EOF {
			return keys, nil
		}
		if readErr != nil {
			return KeySet{}, fmt.Errorf("read ledger %s: %w", path, readErr)
		}
	}
}

// Load is ReadKeys that degrades to an empty set when the file cannot be
// read. The failure is logged; the caller will then redo every page.
func Load(path string, logger *slog.Logger) KeySet {
	keys, err := ReadKeys(path)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Resume ledger unreadable, treating as empty", "path", path, "error", err)
		return KeySet{}
	}
	return keys
}

func pageKey(line []byte) (string, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return "", false
	}
	var head struct {
		PageKey json.RawMessage `json:"page_key"`
	}
	if err := json.Unmarshal(line, &head); err != nil || len(head.PageKey) == 0 {
		return "", false
	}
	// A null page_key decodes into a nil pointer and counts as missing.
	var key *string
	if err := json.Unmarshal(head.PageKey, &key); err != nil || key == nil {
		return "", false
	}
	return *key, true
}

// Appender appends records to a JSONL file, one line per call. Each record
// is written with a single write on a file opened in append mode, so a
// crash leaves at most one partial trailing line.
type Appender struct {
	path string

	mu      sync.Mutex
	checked bool
}

// NewAppender returns an appender for path. The file and its parent
// directories are created on first use.
func NewAppender(path string) *Appender {
	return &Appender{path: path}
}

// Path returns the output file path.
func (a *Appender) Path() string {
	return a.path
}

// Append encodes rec as one JSON line. Non-ASCII text is written as UTF-8.
func (a *Appender) Append(rec any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644) //nolint:gosec // G302/G304: output file
	if err != nil {
		return fmt.Errorf("open output %s: %w", a.path, err)
	}

	line := buf.Bytes()
	if !a.checked {
		// A previous run may have died mid-line; start on a fresh line so
		// the new record stays parseable.
		if repair, err := missingNewline(f); err != nil {
			_ = f.Close()
			return err
		} else if repair {
			line = append([]byte{'\n'}, line...)
		}
		a.checked = true
	}

	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append to %s: %w", a.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", a.path, err)
	}
	return nil
}

func missingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat output: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read output tail: %w", err)
	}
	return last[0] != '\n', nil
}
