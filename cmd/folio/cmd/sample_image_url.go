package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/folio/internal/iiif"
)

var sampleImageURLCmd = &cobra.Command{
	Use:   "sample-image-url <manifest-or-collection>",
	Short: "Print the first IIIF Image API URL the pipeline would fetch",
	Long: `Print the Image API URL of the first page that has an image service,
built from the image request parameters. Useful to check a manifest and the
chosen --size before starting a long run.

Exit status is 2 when no page with an image service exists.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyImageFlags(cfg, cmd)
		params := cfg.ImageParams()

		for entry, err := range iiif.Manifests(cmd.Context(), newFetchClient(cfg), args[0], traverseOptions(cfg)) {
			if err != nil {
				if !cfg.Batch.ContinueOnError {
					return exitWith(1, "processing manifests: %w", err)
				}
				slog.Warn("Skipping manifest", "manifest", entry.ID, "error", err)
				continue
			}
			for _, c := range entry.Manifest.Canvases() {
				if url, ok := c.ImageURL(params); ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), url)
					return nil
				}
			}
		}
		return exitWith(2, "could not find an Image API service @id in any manifest")
	},
}

func init() {
	addImageFlags(sampleImageURLCmd)
	rootCmd.AddCommand(sampleImageURLCmd)
}
