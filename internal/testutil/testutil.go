// Package testutil holds helpers shared by the package tests: temp dirs,
// synthetic page images, IIIF fixture documents, an httptest IIIF server and
// fake OCR collaborators.
package testutil

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// GetProjectRoot returns the project root directory by finding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	dir := filepath.Dir(filename)

	// Walk up the directory tree to find go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
}

// CreateTempDir creates a temporary directory for testing.
func CreateTempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return !os.IsNotExist(err) && info.IsDir()
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path string, content []byte) string {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// ReadLines returns the non-empty lines of a text file.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path) //nolint:gosec // G304: test file with controlled path
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	require.NoError(t, sc.Err())
	return lines
}

// ReadJSONLines decodes every non-empty line of a JSONL file into a map.
func ReadJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range ReadLines(t, path) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		out = append(out, rec)
	}
	return out
}
