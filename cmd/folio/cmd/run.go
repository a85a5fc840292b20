package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/folio/internal/batch"
	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest-list>",
	Short: "Run OCR over every manifest of a manifest list",
	Long: `Run OCR over the manifests of a manifest list, writing one JSONL file per
manifest.

The list holds one manifest per line, either "<manifest id>TAB<output path>"
as written by "folio prepare" or a bare manifest id, in which case the output
path is derived from --output-dir. Blank lines and lines starting with # are
ignored.

Pages already present in an output file are skipped, so an interrupted run can
be restarted with the same command. A failing manifest does not stop the run;
the exit status is 1 when any manifest failed.

Examples:
  folio run manifests.tsv
  folio run manifests.txt --output-dir runs/ocr --workers 4 --max-pages 5
  folio run manifests.tsv --metrics-addr :9090 --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runBatch,
}

func init() {
	addOCRFlags(runCmd)
	runCmd.Flags().StringP("output-dir", "o", "", "output directory for manifests listed without a path")
	runCmd.Flags().IntP("workers", "w", 1, "number of manifests processed concurrently")
	runCmd.Flags().Bool("skip-existing", false, "skip manifests whose output file already exists")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().StringP("format", "f", outputFormatText, "summary format (text, json, csv)")
	runCmd.Flags().String("source-metadata-id", "", "provenance value stored in every record")
	runCmd.Flags().String("ark", "", "ARK identifier stored in every record")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyOCRFlags(cfg, cmd)
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Batch.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("skip-existing") {
		cfg.Batch.SkipExisting, _ = cmd.Flags().GetBool("skip-existing")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	tasks, err := batch.ReadListFile(fetch.ExpandHome(args[0]), fetch.ExpandHome(cfg.OutputDir))
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no manifests found in %s", args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Addr != "" {
		rec = metrics.Prometheus{}
		serveCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(serveCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("Metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	w, err := newWorker(cfg, logger, rec)
	if err != nil {
		return fmt.Errorf("initializing OCR engine: %w", err)
	}

	out := cmd.OutOrStdout()
	var progress batch.ProgressCallback = batch.NewLogProgress(logger, slog.LevelInfo)
	if cfg.Output.Format == outputFormatText {
		progress = batch.MultiProgress{batch.NewConsoleProgress(out), progress}
		_, _ = fmt.Fprintf(out, "Using model: %s\n", cfg.OCR.Model)
	}

	summary := batch.Run(ctx, w, tasks, &batch.Config{
		Workers:      cfg.Batch.Workers,
		SkipExisting: cfg.Batch.SkipExisting,
		Template:     workerOptions(cfg, cmd),
		Progress:     progress,
		Logger:       logger,
	})
	if err := summary.Write(out, cfg.Output.Format); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return exitWith(1, "%d of %d manifest(s) failed", len(failed), len(tasks))
	}
	return nil
}
