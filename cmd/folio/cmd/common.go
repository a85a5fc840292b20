package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/folio/internal/config"
	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/imagecache"
	"github.com/MeKo-Tech/folio/internal/metrics"
	"github.com/MeKo-Tech/folio/internal/ocr"
	"github.com/MeKo-Tech/folio/internal/worker"
)

// addImageFlags registers the IIIF Image API request parameters.
func addImageFlags(cmd *cobra.Command) {
	d := iiif.DefaultImageParams()
	cmd.Flags().String("region", d.Region, "IIIF region parameter")
	cmd.Flags().String("size", d.Size, "IIIF size parameter")
	cmd.Flags().String("rotation", d.Rotation, "IIIF rotation parameter")
	cmd.Flags().String("quality", d.Quality, "IIIF quality parameter")
	cmd.Flags().String("image-format", d.Format, "IIIF format parameter (jpg, png, ...)")
}

// addOCRFlags registers the flags shared by the commands that run OCR.
func addOCRFlags(cmd *cobra.Command) {
	addImageFlags(cmd)
	cmd.Flags().String("model", ocr.DefaultModel, "OCR model: DOI, installed model name or file path")
	cmd.Flags().String("engine", ocr.EngineKraken, "OCR engine (kraken, tesseract)")
	cmd.Flags().String("kraken-bin", "kraken", "kraken executable")
	cmd.Flags().Bool("model-auto-install", true, "install DOI models with `kraken get` before use")
	cmd.Flags().Bool("no-model-auto-install", false, "never install models")
	cmd.Flags().Int("max-pages", 0, "cap on successfully processed pages per manifest (0 = no cap)")
	cmd.Flags().Bool("resume", true, "skip pages already present in the output file")
	cmd.Flags().Bool("no-resume", false, "process every page even if already present in the output file")
	cmd.Flags().Bool("normalize-text", true, "normalize recognized text to Unicode NFC")
	cmd.Flags().Int("max-side", 0, "downscale page images so the longer side is at most this many pixels")
	cmd.Flags().Bool("grayscale", false, "convert page images to grayscale before OCR")
	cmd.Flags().Int("timeout", 0, "per-page OCR timeout in seconds (0 = none)")
}

// applyImageFlags overrides the image section with explicitly set flags.
func applyImageFlags(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("region") {
		cfg.Image.Region, _ = cmd.Flags().GetString("region")
	}
	if cmd.Flags().Changed("size") {
		cfg.Image.Size, _ = cmd.Flags().GetString("size")
	}
	if cmd.Flags().Changed("rotation") {
		cfg.Image.Rotation, _ = cmd.Flags().GetString("rotation")
	}
	if cmd.Flags().Changed("quality") {
		cfg.Image.Quality, _ = cmd.Flags().GetString("quality")
	}
	if cmd.Flags().Changed("image-format") {
		cfg.Image.Format, _ = cmd.Flags().GetString("image-format")
	}
}

// applyOCRFlags maps explicitly set flags onto cfg. CLI flags win over the
// config file, environment and defaults.
func applyOCRFlags(cfg *config.Config, cmd *cobra.Command) {
	applyImageFlags(cfg, cmd)

	if cmd.Flags().Changed("model") {
		cfg.OCR.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("engine") {
		cfg.OCR.Engine, _ = cmd.Flags().GetString("engine")
	}
	if cmd.Flags().Changed("kraken-bin") {
		cfg.OCR.KrakenBin, _ = cmd.Flags().GetString("kraken-bin")
	}
	if cmd.Flags().Changed("model-auto-install") {
		cfg.OCR.ModelAutoInstall, _ = cmd.Flags().GetBool("model-auto-install")
	}
	if off, _ := cmd.Flags().GetBool("no-model-auto-install"); off {
		cfg.OCR.ModelAutoInstall = false
	}
	if cmd.Flags().Changed("max-pages") {
		cfg.Batch.MaxPages, _ = cmd.Flags().GetInt("max-pages")
	}
	if cmd.Flags().Changed("resume") {
		cfg.Batch.Resume, _ = cmd.Flags().GetBool("resume")
	}
	if off, _ := cmd.Flags().GetBool("no-resume"); off {
		cfg.Batch.Resume = false
	}
	if cmd.Flags().Changed("normalize-text") {
		cfg.Output.NormalizeText, _ = cmd.Flags().GetBool("normalize-text")
	}
	if cmd.Flags().Changed("max-side") {
		cfg.Preprocess.MaxSide, _ = cmd.Flags().GetInt("max-side")
	}
	if cmd.Flags().Changed("grayscale") {
		cfg.Preprocess.Grayscale, _ = cmd.Flags().GetBool("grayscale")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.OCR.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
}

// newFetchClient builds the HTTP/file loader from cfg.
func newFetchClient(cfg *config.Config) *fetch.Client {
	return fetch.New(cfg.ToFetchOptions())
}

// newWorker wires the loader, image cache, OCR engine and metrics into a
// manifest worker.
func newWorker(cfg *config.Config, logger *slog.Logger, rec metrics.Recorder) (*worker.Worker, error) {
	client := newFetchClient(cfg)
	cache := imagecache.New(fetch.ExpandHome(cfg.CacheDir), client,
		imagecache.WithVerify(cfg.Fetch.VerifyImages),
		imagecache.WithLogger(logger),
	)
	engine, resolver, err := ocr.New(cfg.ToOCRConfig(logger))
	if err != nil {
		return nil, err
	}
	return &worker.Worker{
		Loader:   client,
		Images:   cache,
		Engine:   engine,
		Resolver: ocr.Memoize(resolver),
		Prep:     cfg.Preprocess,
		Metrics:  rec,
		Logger:   logger,
	}, nil
}

// workerOptions is the per-manifest template derived from cfg and the
// provenance flags. OutputPath is filled per manifest.
func workerOptions(cfg *config.Config, cmd *cobra.Command) worker.Options {
	opts := worker.Options{
		Model:         cfg.OCR.Model,
		Params:        cfg.ImageParams(),
		Resume:        cfg.Batch.Resume,
		MaxPages:      cfg.Batch.MaxPages,
		NormalizeText: cfg.Output.NormalizeText,
		PageTimeout:   cfg.PageTimeout(),
	}
	if f := cmd.Flags().Lookup("source-metadata-id"); f != nil {
		opts.SourceMetadataID = f.Value.String()
	}
	if f := cmd.Flags().Lookup("ark"); f != nil {
		opts.ARK = f.Value.String()
	}
	return opts
}

// traverseOptions builds collection traversal options from cfg.
func traverseOptions(cfg *config.Config) iiif.TraverseOptions {
	return iiif.TraverseOptions{
		ContinueOnError: cfg.Batch.ContinueOnError,
		Recursive:       cfg.Batch.RecursiveCollections,
	}
}
