// Package worker processes one manifest end to end: load, validate, then
// for every page compute its key, skip completed work, fetch the image
// through the cache, run OCR and append the result.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/folio/internal/address"
	"github.com/MeKo-Tech/folio/internal/common"
	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/imageprep"
	"github.com/MeKo-Tech/folio/internal/ledger"
	"github.com/MeKo-Tech/folio/internal/metrics"
	"github.com/MeKo-Tech/folio/internal/ocr"
)

// Stage is the terminal state a manifest reached.
type Stage string

const (
	// StageLoadFailed: the manifest or the model could not be obtained.
	StageLoadFailed Stage = "load_failed"
	// StageRejected: the manifest loaded but failed structural validation.
	StageRejected Stage = "rejected"
	// StageDone: every page was attempted.
	StageDone Stage = "done"
	// StageAborted: page processing stopped on an unexpected condition.
	StageAborted Stage = "aborted"
)

// Page failure reasons reported to metrics.
const (
	reasonNoImage = "no_image"
	reasonFetch   = "fetch"
	reasonPrepare = "prepare"
	reasonOCR     = "ocr"
)

// ImageSource returns a local path for an image URL.
type ImageSource interface {
	Ensure(ctx context.Context, url, format string) (path string, hit bool, err error)
}

// Options is the per-manifest processing context.
type Options struct {
	// OutputPath is the manifest's JSONL file.
	OutputPath string
	// Model is the model reference as configured.
	Model  string
	Params iiif.ImageParams
	Resume bool
	// MaxPages caps successfully processed pages; 0 means no cap.
	MaxPages         int
	SourceMetadataID string
	ARK              string
	// NormalizeText converts recognized text to Unicode NFC.
	NormalizeText bool
	// PageTimeout bounds each OCR call; 0 means no bound.
	PageTimeout time.Duration
}

// Result is the outcome of one manifest.
type Result struct {
	ManifestID       string                 `json:"manifest_id" yaml:"manifest_id"`
	OutputPath       string                 `json:"output_path" yaml:"output_path"`
	Stage            Stage                  `json:"stage" yaml:"stage"`
	PagesProcessed   int                    `json:"pages_processed" yaml:"pages_processed"`
	PagesSkipped     int                    `json:"pages_skipped" yaml:"pages_skipped"`
	PagesFailed      int                    `json:"pages_failed" yaml:"pages_failed"`
	ValidationIssues []iiif.ValidationIssue `json:"validation_issues,omitempty" yaml:"validation_issues,omitempty"`
	Elapsed          time.Duration          `json:"elapsed_ns" yaml:"elapsed"`
	Success          bool                   `json:"success" yaml:"success"`
	Err              error                  `json:"-" yaml:"-"`
	Error            string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// Worker holds the collaborators shared by every manifest it processes.
type Worker struct {
	Loader   iiif.Loader
	Images   ImageSource
	Engine   ocr.Engine
	Resolver ocr.ModelResolver
	Prep     imageprep.Options
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	// Now stamps records; defaults to time.Now.
	Now common.Clock
}

// ProcessManifest loads manifestID and processes it.
func (w *Worker) ProcessManifest(ctx context.Context, manifestID string, opts Options) *Result {
	return w.process(ctx, manifestID, nil, opts)
}

// ProcessLoaded processes a manifest that has already been fetched, for
// callers that obtained it through traversal.
func (w *Worker) ProcessLoaded(ctx context.Context, manifestID string, m *iiif.Manifest, opts Options) *Result {
	return w.process(ctx, manifestID, m, opts)
}

func (w *Worker) process(ctx context.Context, manifestID string, m *iiif.Manifest, opts Options) (res *Result) {
	logger := w.logger().With("manifest", manifestID)
	rec := w.recorder()
	timer := common.NewNamedTimerWithClock("manifest", w.now())

	res = &Result{ManifestID: manifestID, OutputPath: opts.OutputPath}
	rec.ManifestStarted()
	defer func() {
		if p := recover(); p != nil {
			res.fail(StageAborted, fmt.Errorf("panic: %v", p))
			logger.Error("Manifest processing panicked", "panic", p)
		}
		res.Elapsed = timer.Stop()
		rec.ManifestFinished(string(res.Stage))
	}()

	// Loading: model first, then the manifest itself.
	resolved, err := w.resolver().EnsureAvailable(ctx, opts.Model)
	if err != nil {
		logger.Error("Model resolution failed", "model", opts.Model, "error", err)
		res.fail(StageLoadFailed, fmt.Errorf("resolve model %s: %w", opts.Model, err))
		return res
	}
	if m == nil {
		m, err = iiif.LoadManifest(ctx, w.Loader, manifestID)
		if err != nil {
			logger.Error("Manifest load failed", "error", err)
			res.fail(StageLoadFailed, err)
			return res
		}
	}

	// Validating
	if issues := iiif.ValidateManifest(m); len(issues) > 0 {
		logger.Warn("Manifest rejected", "issues", len(issues), "first", issues[0].String())
		res.ValidationIssues = issues
		res.fail(StageRejected, fmt.Errorf("manifest failed validation with %d issue(s)", len(issues)))
		return res
	}

	// ProcessingPages
	done := ledger.KeySet{}
	if opts.Resume {
		done = ledger.Load(opts.OutputPath, logger)
	}
	p := &pageRun{
		w:        w,
		opts:     opts,
		params:   opts.Params.WithDefaults(),
		resolved: resolved,
		id:       manifestID,
		done:     done,
		out:      ledger.NewAppender(opts.OutputPath),
		logger:   logger,
		rec:      rec,
		res:      res,
	}
	if err := p.run(ctx, m.Canvases()); err != nil {
		logger.Error("Manifest aborted", "error", err,
			"processed", res.PagesProcessed, "skipped", res.PagesSkipped, "failed", res.PagesFailed)
		res.fail(StageAborted, err)
		return res
	}

	res.Stage = StageDone
	res.Success = true
	logger.Info("Manifest done",
		"processed", res.PagesProcessed, "skipped", res.PagesSkipped, "failed", res.PagesFailed,
		"elapsed", timer.Elapsed().String())
	return res
}

func (r *Result) fail(stage Stage, err error) {
	r.Stage = stage
	r.Success = false
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

type pageRun struct {
	w        *Worker
	opts     Options
	params   iiif.ImageParams
	resolved string
	id       string
	done     ledger.KeySet
	out      *ledger.Appender
	logger   *slog.Logger
	rec      metrics.Recorder
	res      *Result
}

// run returns an error only for conditions that stop the whole manifest.
func (p *pageRun) run(ctx context.Context, canvases []iiif.Canvas) error {
	for i := range canvases {
		if p.opts.MaxPages > 0 && p.res.PagesProcessed >= p.opts.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.page(ctx, i, &canvases[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *pageRun) page(ctx context.Context, index int, canvas *iiif.Canvas) error {
	logger := p.logger.With("canvas_index", index, "canvas", canvas.ID)

	imageURL, ok := canvas.ImageURL(p.params)
	if !ok {
		logger.Warn("Page has no image service")
		p.failed(reasonNoImage)
		return nil
	}

	key := address.WorkUnit{
		ManifestID: p.id,
		CanvasID:   canvas.ID,
		Model:      p.resolved,
		Format:     p.params.Format,
		Size:       p.params.Size,
		Quality:    p.params.Quality,
		Region:     p.params.Region,
		Rotation:   p.params.Rotation,
	}.Key()
	if p.opts.Resume && p.done.Has(key) {
		logger.Debug("Page already done")
		p.res.PagesSkipped++
		p.rec.PageSkipped()
		return nil
	}

	imagePath, hit, err := p.w.Images.Ensure(ctx, imageURL, p.params.Format)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Image fetch failed", "url", imageURL, "error", err)
		p.failed(reasonFetch)
		return nil
	}
	p.rec.CacheLookup(hit)

	ocrInput, err := imageprep.Prepare(imagePath, p.w.Prep)
	if err != nil {
		logger.Warn("Image preparation failed", "path", imagePath, "error", err)
		p.failed(reasonPrepare)
		return nil
	}

	text, elapsed, err := p.recognize(ctx, ocrInput)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("OCR failed", "path", ocrInput, "error", err)
		p.failed(reasonOCR)
		return nil
	}
	if p.opts.NormalizeText {
		text = norm.NFC.String(text)
	}

	if err := p.out.Append(ledger.Record{
		CreatedAt:        ledger.Timestamp(p.w.now()()),
		PageKey:          key,
		CanvasIndex:      index,
		Engine:           p.w.Engine.Name(),
		Model:            ledger.ModelInfo{Ref: p.opts.Model, Resolved: p.resolved},
		ManifestURL:      p.id,
		CanvasID:         canvas.ID,
		ImageURL:         imageURL,
		ElapsedMS:        elapsed.Milliseconds(),
		Text:             text,
		SourceMetadataID: ledger.Optional(p.opts.SourceMetadataID),
		ARK:              ledger.Optional(p.opts.ARK),
	}); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	p.done.Add(key)
	p.res.PagesProcessed++
	p.rec.PageProcessed(p.w.Engine.Name(), elapsed, len(text))
	logger.Debug("Page done", "elapsed_ms", elapsed.Milliseconds(), "chars", len(text), "cache_hit", hit)
	return nil
}

func (p *pageRun) recognize(ctx context.Context, imagePath string) (string, time.Duration, error) {
	if p.opts.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.PageTimeout)
		defer cancel()
	}
	timer := common.NewNamedTimerWithClock("ocr", p.w.now())
	text, err := p.w.Engine.Recognize(ctx, imagePath, p.resolved)
	return text, timer.Stop(), err
}

func (p *pageRun) failed(reason string) {
	p.res.PagesFailed++
	p.rec.PageFailed(reason)
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func (w *Worker) recorder() metrics.Recorder {
	if w.Metrics == nil {
		return metrics.Nop{}
	}
	return w.Metrics
}

func (w *Worker) resolver() ocr.ModelResolver {
	if w.Resolver == nil {
		return ocr.Passthrough
	}
	return w.Resolver
}

func (w *Worker) now() common.Clock {
	if w.Now == nil {
		return time.Now
	}
	return w.Now
}
