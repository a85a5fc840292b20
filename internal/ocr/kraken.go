package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Runner executes a command and returns its captured output.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: engine binary is operator-configured
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

var modelFilesPattern = regexp.MustCompile(`\(model files:\s*([^)]+)\)`)

// KrakenOptions configures KrakenEngine.
type KrakenOptions struct {
	// Bin is the kraken executable; defaults to "kraken" on PATH.
	Bin         string
	AutoInstall bool
	Runner      Runner
	Logger      *slog.Logger
}

// KrakenEngine drives the kraken CLI. It is both an Engine and a
// ModelResolver.
type KrakenEngine struct {
	bin         string
	autoInstall bool
	run         Runner
	logger      *slog.Logger
}

// NewKraken returns a kraken adapter.
func NewKraken(opts KrakenOptions) *KrakenEngine {
	e := &KrakenEngine{
		bin:         opts.Bin,
		autoInstall: opts.AutoInstall,
		run:         opts.Runner,
		logger:      opts.Logger,
	}
	if e.bin == "" {
		e.bin = "kraken"
	}
	if e.run == nil {
		e.run = ExecRunner
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Name implements Engine.
func (e *KrakenEngine) Name() string { return "kraken" }

// EnsureAvailable installs DOI-style references with `kraken get` when
// auto-install is on and returns the installed model file name. Other
// references are returned unchanged.
func (e *KrakenEngine) EnsureAvailable(ctx context.Context, ref string) (string, error) {
	if !LooksLikePersistentID(ref) || !e.autoInstall {
		return ref, nil
	}

	stdout, stderr, err := e.run(ctx, e.bin, "get", ref)
	if err != nil {
		return "", e.commandError("kraken get", err, stdout, stderr)
	}

	out := string(stdout) + "\n" + string(stderr)
	if m := modelFilesPattern.FindStringSubmatch(out); m != nil {
		if fields := strings.Fields(m[1]); len(fields) > 0 {
			resolved := strings.Trim(fields[0], ",")
			e.logger.Info("Installed kraken model", "ref", ref, "resolved", resolved)
			return resolved, nil
		}
	}
	return ref, nil
}

// Recognize runs binarization, baseline segmentation and recognition on
// one image. When kraken produces no output file the page text is empty.
func (e *KrakenEngine) Recognize(ctx context.Context, imagePath, model string) (string, error) {
	dir, err := os.MkdirTemp("", "folio-kraken-")
	if err != nil {
		return "", fmt.Errorf("create kraken work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	outPath := filepath.Join(dir, "out.txt")
	stdout, stderr, err := e.run(ctx, e.bin,
		"-i", imagePath, outPath,
		"binarize",
		"segment", "-bl",
		"ocr", "-m", model,
	)
	if err != nil {
		return "", e.commandError("kraken ocr", err, stdout, stderr)
	}

	data, err := os.ReadFile(outPath) //nolint:gosec // G304: file inside our temp dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Info("Kraken produced no output", "image_path", imagePath, "model", model)
			return "", nil
		}
		return "", fmt.Errorf("read kraken output: %w", err)
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

func (e *KrakenEngine) commandError(what string, err error, stdout, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s not found; install kraken and ensure it is on PATH", ErrEngineUnavailable, e.bin)
	}
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(stdout))
	}
	if detail == "" {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return fmt.Errorf("%s failed: %w: %s", what, err, detail)
}
