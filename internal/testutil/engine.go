package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// FakeEngine is a scripted OCR engine. Text is returned for every image
// unless Fail names the image's base file name.
type FakeEngine struct {
	EngineName string
	Text       string
	Fail       map[string]error
	// Hook runs before each recognition; a non-nil return aborts it.
	Hook func(ctx context.Context, imagePath string) error

	mu    sync.Mutex
	calls []string
}

// Name implements the engine interface.
func (e *FakeEngine) Name() string {
	if e.EngineName == "" {
		return "fake"
	}
	return e.EngineName
}

// Recognize implements the engine interface.
func (e *FakeEngine) Recognize(ctx context.Context, imagePath, model string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, imagePath)
	e.mu.Unlock()

	if e.Hook != nil {
		if err := e.Hook(ctx, imagePath); err != nil {
			return "", err
		}
	}
	if err, ok := e.Fail[filepath.Base(imagePath)]; ok {
		return "", err
	}
	if e.Text != "" {
		return e.Text, nil
	}
	return fmt.Sprintf("text of %s with %s", filepath.Base(imagePath), model), nil
}

// Calls returns the image paths recognized so far.
func (e *FakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// FakeResolver resolves model references from a table. Unknown references
// resolve to themselves.
type FakeResolver struct {
	Resolved map[string]string
	Err      error
}

// EnsureAvailable implements the model resolver interface.
func (r *FakeResolver) EnsureAvailable(_ context.Context, ref string) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	if v, ok := r.Resolved[ref]; ok {
		return v, nil
	}
	return ref, nil
}

// fakeKrakenScript mimics the two kraken invocations folio makes: "get REF"
// and "-i IMAGE OUT ... ocr -m MODEL". Recognized images are logged to
// calls.log next to the script.
const fakeKrakenScript = `#!/bin/sh
if [ "$1" = "get" ]; then
  echo "(model files: fake.mlmodel)"
  exit 0
fi
echo "$2" >> "$(dirname "$0")/calls.log"
echo "recognized $(basename "$2")" > "$3"
`

// InstallFakeKraken writes a shell script standing in for the kraken CLI
// into dir and returns its path.
func InstallFakeKraken(dir string) (string, error) {
	path := filepath.Join(dir, "kraken")
	if err := os.WriteFile(path, []byte(fakeKrakenScript), 0o755); err != nil { //nolint:gosec // G306: must be executable
		return "", fmt.Errorf("write fake kraken: %w", err)
	}
	return path, nil
}

// WriteFakeKraken is InstallFakeKraken for tests. It skips on Windows.
func WriteFakeKraken(t testing.TB, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake kraken needs a POSIX shell")
	}
	path, err := InstallFakeKraken(dir)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

// ReadFakeKrakenCalls returns the image paths the fake kraken at bin
// recognized.
func ReadFakeKrakenCalls(bin string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "calls.log")) //nolint:gosec // G304: next to the script
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fake kraken log: %w", err)
	}
	return strings.Fields(string(data)), nil
}

// FakeKrakenCalls is ReadFakeKrakenCalls for tests.
func FakeKrakenCalls(t testing.TB, bin string) []string {
	t.Helper()
	calls, err := ReadFakeKrakenCalls(bin)
	if err != nil {
		t.Fatal(err)
	}
	return calls
}
