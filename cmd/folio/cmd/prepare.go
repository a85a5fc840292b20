package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/folio/internal/batch"
	"github.com/MeKo-Tech/folio/internal/fetch"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <manifest-or-collection>...",
	Short: "Expand manifests and collections into a manifest list",
	Long: `Expand IIIF manifests and collections into a manifest list for "folio run".

Each line of the list holds a manifest id and its output path separated by a
TAB. Output paths are <output-dir>/<sha1(manifest id)>.jsonl, so preparing the
same input twice yields the same list. Manifests reachable through more than
one input are listed once.

With --csv the arguments are CSV files whose manifest_url column supplies
the references.

Examples:
  folio prepare collection.json --manifest-list manifests.tsv --output-dir runs/ocr
  folio prepare export.csv --csv --manifest-list manifests.tsv --continue-on-error`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		listPath, _ := cmd.Flags().GetString("manifest-list")
		if cmd.Flags().Changed("output-dir") {
			cfg.OutputDir, _ = cmd.Flags().GetString("output-dir")
		}
		if cmd.Flags().Changed("continue-on-error") {
			cfg.Batch.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		}
		if cmd.Flags().Changed("recursive") {
			cfg.Batch.RecursiveCollections, _ = cmd.Flags().GetBool("recursive")
		}
		if cfg.OutputDir == "" {
			return fmt.Errorf("--output-dir is required")
		}

		refs := args
		if fromCSV, _ := cmd.Flags().GetBool("csv"); fromCSV {
			refs = nil
			for _, path := range args {
				urls, err := batch.ReadCSVURLsFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				refs = append(refs, urls...)
			}
		}

		tasks, skipped, err := batch.Prepare(cmd.Context(), newFetchClient(cfg), refs,
			fetch.ExpandHome(cfg.OutputDir), traverseOptions(cfg), slog.Default())
		if err != nil {
			return fmt.Errorf("expanding %d reference(s): %w", len(refs), err)
		}
		if err := batch.WriteListFile(listPath, tasks); err != nil {
			return err
		}

		errOut := cmd.ErrOrStderr()
		for _, s := range skipped {
			_, _ = fmt.Fprintf(errOut, "skipped %s: %s\n", s.Ref, s.Reason)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d manifest(s) to %s\n", len(tasks), listPath)
		return nil
	},
}

func init() {
	prepareCmd.Flags().String("manifest-list", "", "manifest list file to write")
	prepareCmd.Flags().StringP("output-dir", "o", "", "directory for the per-manifest JSONL files")
	prepareCmd.Flags().Bool("csv", false, "arguments are CSV files with a manifest_url column")
	prepareCmd.Flags().Bool("continue-on-error", true, "skip references that cannot be loaded")
	prepareCmd.Flags().Bool("recursive", false, "descend into nested collections")
	_ = prepareCmd.MarkFlagRequired("manifest-list")
	rootCmd.AddCommand(prepareCmd)
}
