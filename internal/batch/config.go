package batch

import (
	"log/slog"

	"github.com/MeKo-Tech/folio/internal/worker"
)

// Config holds all configuration for a multi-manifest run.
type Config struct {
	// Workers is the number of manifests processed concurrently. Pages of
	// one manifest are always processed sequentially.
	Workers int

	// SkipExisting skips a manifest whose output file already exists,
	// without looking inside it.
	SkipExisting bool

	// Template is copied for every manifest; OutputPath is set per task.
	Template worker.Options

	Progress ProgressCallback
	Logger   *slog.Logger
}

func (c *Config) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}

func (c *Config) progress() ProgressCallback {
	if c.Progress == nil {
		return NoOpProgress{}
	}
	return c.Progress
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
