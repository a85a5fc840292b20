package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/folio/internal/address"
	"github.com/MeKo-Tech/folio/internal/batch"
	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/metrics"
	"github.com/MeKo-Tech/folio/internal/worker"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <manifest-or-collection>",
	Short: "Run OCR over a manifest or every manifest of a collection",
	Long: `Run OCR over a IIIF Presentation 2.x manifest, or over every manifest of a
collection, and append one JSON record per page to a JSONL file.

With --out every manifest is written to that single file. With --output-dir
each manifest gets its own <sha1(manifest id)>.jsonl file. Pages already
present in the output are skipped unless --no-resume is given.

Models given as a DOI are installed with "kraken get" on first use unless
--no-model-auto-install is set.

Examples:
  folio ocr https://example.org/iiif/book/manifest --out book.jsonl --max-pages 5
  folio ocr collection.json --output-dir runs/ocr --model 10.5281/zenodo.14585602
  folio ocr manifest.json --out out.jsonl --size '!2000,2000' --grayscale`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runOCR,
}

func init() {
	addOCRFlags(ocrCmd)
	ocrCmd.Flags().String("out", "", "output JSONL file for all manifests")
	ocrCmd.Flags().StringP("output-dir", "o", "", "directory for one JSONL file per manifest")
	ocrCmd.Flags().StringP("format", "f", outputFormatText, "summary format (text, json, csv)")
	ocrCmd.Flags().Bool("continue-on-error", true, "keep going when a collection member cannot be loaded")
	ocrCmd.Flags().Bool("recursive", false, "descend into nested collections")
	ocrCmd.Flags().String("source-metadata-id", "", "provenance value stored in every record")
	ocrCmd.Flags().String("ark", "", "ARK identifier stored in every record")
	ocrCmd.MarkFlagsMutuallyExclusive("out", "output-dir")
	rootCmd.AddCommand(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	ref := args[0]
	cfg := GetConfig()
	applyOCRFlags(cfg, cmd)
	out, _ := cmd.Flags().GetString("out")
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Batch.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	if cmd.Flags().Changed("recursive") {
		cfg.Batch.RecursiveCollections, _ = cmd.Flags().GetBool("recursive")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	w, err := newWorker(cfg, logger, metrics.Nop{})
	if err != nil {
		return fmt.Errorf("initializing OCR engine: %w", err)
	}

	outputPath := func(id string) string {
		if out != "" {
			return fetch.ExpandHome(out)
		}
		return address.ManifestOutputPath(id, fetch.ExpandHome(cfg.OutputDir))
	}

	stdout := cmd.OutOrStdout()
	var progress batch.ProgressCallback = batch.NoOpProgress{}
	if cfg.Output.Format == outputFormatText {
		progress = batch.NewConsoleProgress(stdout)
	}

	template := workerOptions(cfg, cmd)
	summary := &batch.Summary{RunID: uuid.NewString(), Workers: 1}
	start := time.Now()
	progress.OnStart(0)
	for entry, err := range iiif.Manifests(ctx, w.Loader, ref, traverseOptions(cfg)) {
		task := batch.Task{ManifestID: entry.ID, OutputPath: outputPath(entry.ID)}
		var res *worker.Result
		if err != nil {
			logger.Error("Manifest load failed", "manifest", entry.ID, "error", err)
			res = &worker.Result{
				ManifestID: entry.ID,
				Stage:      worker.StageLoadFailed,
				Err:        err,
				Error:      err.Error(),
			}
		} else {
			opts := template
			opts.OutputPath = task.OutputPath
			res = w.ProcessLoaded(ctx, entry.ID, entry.Manifest, opts)
		}
		o := batch.Outcome{Task: task, Result: res}
		summary.Outcomes = append(summary.Outcomes, o)
		progress.OnManifest(len(summary.Outcomes), 0, o)
	}
	summary.Duration = time.Since(start)
	progress.OnComplete(summary)

	if err := summary.Write(stdout, cfg.Output.Format); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	if len(summary.Outcomes) == 0 {
		return exitWith(1, "no manifests found in %s", ref)
	}
	if failed := summary.Failed(); len(failed) > 0 {
		return exitWith(1, "%d of %d manifest(s) failed", len(failed), len(summary.Outcomes))
	}
	return nil
}
