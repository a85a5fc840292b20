package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ProgressCallback receives progress reports while a run is in flight.
// Implementations must be safe for concurrent use when Workers > 1.
type ProgressCallback interface {
	// OnStart is called once with the number of manifests.
	OnStart(total int)

	// OnManifest is called after each manifest with the count finished so far.
	OnManifest(done, total int, o Outcome)

	// OnComplete is called when the run is finished.
	OnComplete(s *Summary)
}

// NoOpProgress implements ProgressCallback but does nothing.
type NoOpProgress struct{}

func (NoOpProgress) OnStart(int)                  {}
func (NoOpProgress) OnManifest(int, int, Outcome) {}
func (NoOpProgress) OnComplete(*Summary)          {}

// ConsoleProgress prints one line per manifest, in the style of an
// interactive run.
type ConsoleProgress struct {
	writer    io.Writer
	mu        sync.Mutex
	startTime time.Time
}

// NewConsoleProgress creates a console reporter; nil writes to stdout.
func NewConsoleProgress(w io.Writer) *ConsoleProgress {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleProgress{writer: w}
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	if total > 0 {
		_, _ = fmt.Fprintf(c.writer, "Found %d manifest(s) to process\n", total)
	}
}

func (c *ConsoleProgress) OnManifest(done, total int, o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// total is unknown (0) while a collection is still being traversed.
	prefix := fmt.Sprintf("[%d/%d]", done, total)
	if total <= 0 {
		prefix = fmt.Sprintf("[%d]", done)
	}
	switch {
	case o.Skipped:
		_, _ = fmt.Fprintf(c.writer, "%s skipped (output exists): %s\n", prefix, o.Task.ManifestID)
	case o.Result == nil:
		_, _ = fmt.Fprintf(c.writer, "%s not started: %s\n", prefix, o.Task.ManifestID)
	case o.Result.Success:
		r := o.Result
		_, _ = fmt.Fprintf(c.writer, "%s done: %s (%d processed, %d skipped, %d failed, %s)\n",
			prefix, o.Task.ManifestID, r.PagesProcessed, r.PagesSkipped, r.PagesFailed,
			r.Elapsed.Round(100*time.Millisecond))
	default:
		_, _ = fmt.Fprintf(c.writer, "%s %s: %s: %s\n", prefix, o.Result.Stage, o.Task.ManifestID, o.Result.Error)
		issues := o.Result.ValidationIssues
		for i, issue := range issues {
			if i == maxListedIssues {
				_, _ = fmt.Fprintf(c.writer, "    ... and %d more\n", len(issues)-maxListedIssues)
				break
			}
			_, _ = fmt.Fprintf(c.writer, "    - %s\n", issue)
		}
	}
}

func (c *ConsoleProgress) OnComplete(*Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "Completed in %v\n", time.Since(c.startTime).Round(time.Millisecond))
}

const maxListedIssues = 5

// LogProgress logs progress updates using slog.
type LogProgress struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogProgress creates a log-based progress reporter.
func NewLogProgress(logger *slog.Logger, level slog.Level) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgress{logger: logger, level: level}
}

func (l *LogProgress) OnStart(total int) {
	l.logger.Log(context.Background(), l.level, "Starting run", "manifests", total)
}

func (l *LogProgress) OnManifest(done, total int, o Outcome) {
	attrs := []any{"done", done, "total", total, "manifest", o.Task.ManifestID, "skipped", o.Skipped}
	if o.Result != nil {
		attrs = append(attrs, "stage", o.Result.Stage, "pages_processed", o.Result.PagesProcessed)
	}
	l.logger.Log(context.Background(), l.level, "Progress update", attrs...)
}

func (l *LogProgress) OnComplete(s *Summary) {
	l.logger.Log(context.Background(), l.level, "Run completed",
		"processed", s.Processed(), "skipped", s.SkippedManifests(), "failed", len(s.Failed()),
		"pages", s.TotalPages(), "elapsed", s.Duration.Round(time.Millisecond))
}

// MultiProgress combines multiple progress callbacks.
type MultiProgress []ProgressCallback

func (m MultiProgress) OnStart(total int) {
	for _, cb := range m {
		cb.OnStart(total)
	}
}

func (m MultiProgress) OnManifest(done, total int, o Outcome) {
	for _, cb := range m {
		cb.OnManifest(done, total, o)
	}
}

func (m MultiProgress) OnComplete(s *Summary) {
	for _, cb := range m {
		cb.OnComplete(s)
	}
}
