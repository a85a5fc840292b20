package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/folio/internal/batch"
	"github.com/MeKo-Tech/folio/internal/iiif"
)

var validateListCmd = &cobra.Command{
	Use:   "validate-list <csv-file>",
	Short: "Validate every manifest listed in a CSV report",
	Long: `Validate the manifests listed in the manifest_url column of a CSV file,
such as a repository export. Each manifest is reported on its own line;
unreachable manifests are reported and skipped.

Exit status is 1 if any manifest could not be loaded, 2 if any manifest has
issues and 0 otherwise.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, err := batch.ReadCSVURLsFile(args[0])
		if err != nil {
			return err
		}

		client := newFetchClient(GetConfig())
		out := cmd.OutOrStdout()
		var unreachable, invalid int
		for _, url := range urls {
			m, err := iiif.LoadManifest(cmd.Context(), client, url)
			if err != nil {
				unreachable++
				_, _ = fmt.Fprintf(out, "FAIL %s: could not access manifest: %v\n", url, err)
				continue
			}
			issues := iiif.ValidateManifest(m)
			if len(issues) == 0 {
				_, _ = fmt.Fprintf(out, "OK   %s: validation passed\n", url)
				continue
			}
			invalid++
			var sb strings.Builder
			fmt.Fprintf(&sb, "FAIL %s: validation failed (%d issue(s))\n", url, len(issues))
			for i, issue := range issues {
				fmt.Fprintf(&sb, "  %3d. %s\n", i+1, issue)
			}
			_, _ = fmt.Fprint(out, sb.String())
		}

		_, _ = fmt.Fprintf(out, "\n%d manifest(s): %d valid, %d invalid, %d unreachable\n",
			len(urls), len(urls)-invalid-unreachable, invalid, unreachable)
		switch {
		case unreachable > 0:
			return exitWith(1, "%d manifest(s) could not be loaded", unreachable)
		case invalid > 0:
			return exitWith(2, "%d manifest(s) failed validation", invalid)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateListCmd)
}
