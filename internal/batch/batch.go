// Package batch runs the manifest worker over a list of manifests and
// prepares such lists from collections.
package batch

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/folio/internal/worker"
)

// Processor is the per-manifest work performed by Run.
type Processor interface {
	ProcessManifest(ctx context.Context, manifestID string, opts worker.Options) *worker.Result
}

// Run processes every task and returns a summary in task order. Manifest
// failures are recorded in the summary; Run itself does not fail. Tasks not
// yet started when ctx is cancelled are reported without a result.
func Run(ctx context.Context, p Processor, tasks []Task, config *Config) *Summary {
	runID := uuid.NewString()
	logger := config.logger().With("run_id", runID)
	progress := config.progress()
	start := time.Now()

	summary := &Summary{
		RunID:    runID,
		Workers:  config.workers(),
		Outcomes: make([]Outcome, len(tasks)),
	}
	progress.OnStart(len(tasks))

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		summary.Outcomes[i] = o
		done++
		progress.OnManifest(done, len(tasks), o)
	}

	var g errgroup.Group
	g.SetLimit(config.workers())
	for i, task := range tasks {
		if ctx.Err() != nil {
			finish(i, Outcome{Task: task})
			continue
		}
		if config.SkipExisting && outputExists(task.OutputPath) {
			logger.Info("Skipping manifest with existing output", "manifest", task.ManifestID, "output", task.OutputPath)
			finish(i, Outcome{Task: task, Skipped: true})
			continue
		}
		g.Go(func() error {
			opts := config.Template
			opts.OutputPath = task.OutputPath
			res := p.ProcessManifest(ctx, task.ManifestID, opts)
			finish(i, Outcome{Task: task, Result: res})
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	progress.OnComplete(summary)
	logger.Info("Run finished",
		"manifests", len(tasks), "processed", summary.Processed(), "skipped", summary.SkippedManifests(),
		"failed", len(summary.Failed()), "pages", summary.TotalPages())
	return summary
}

func outputExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
