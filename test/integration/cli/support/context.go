package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/folio/internal/address"
	"github.com/MeKo-Tech/folio/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastStdout    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir string
	TempDir    string
	EnvVars    []string

	// IIIF fixtures
	Server     *testutil.IIIFServer
	Resources  map[string]string
	KrakenPath string
}

// NewTestContext creates a scenario context rooted at the project directory.
func NewTestContext() (*TestContext, error) {
	workingDir, err := testutil.GetProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to locate project root: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "folio-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx := &TestContext{
		WorkingDir: workingDir,
		TempDir:    tempDir,
		EnvVars:    []string{},
		Resources:  map[string]string{},
	}
	// Keep runs away from the developer's cache and config.
	ctx.AddEnvVar("FOLIO_CACHE_DIR", filepath.Join(tempDir, "cache"))
	ctx.AddEnvVar("HOME", tempDir)
	return ctx, nil
}

// Cleanup stops the fixture server and removes the temp directory.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.Server != nil {
		testCtx.Server.Close()
		testCtx.Server = nil
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// server starts the fixture server on first use.
func (testCtx *TestContext) server() *testutil.IIIFServer {
	if testCtx.Server == nil {
		testCtx.Server = testutil.StartIIIFServer()
	}
	return testCtx.Server
}

// substitute expands placeholders in step arguments:
//
//	{tmp}               the scenario's temp directory
//	{kraken}            the fake kraken executable
//	{url:NAME}          the URL of a registered manifest or collection
//	{out:NAME}          <tmp>/out/<sha1 of NAME's URL>.jsonl
func (testCtx *TestContext) substitute(s string) string {
	s = strings.ReplaceAll(s, "{tmp}", testCtx.TempDir)
	s = strings.ReplaceAll(s, "{kraken}", testCtx.KrakenPath)
	for name, url := range testCtx.Resources {
		s = strings.ReplaceAll(s, "{url:"+name+"}", url)
		s = strings.ReplaceAll(s, "{out:"+name+"}", address.ManifestOutputPath(url, filepath.Join(testCtx.TempDir, "out")))
	}
	return s
}

func (testCtx *TestContext) resolvePath(path string) string {
	path = testCtx.substitute(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(testCtx.TempDir, path)
	}
	return path
}
