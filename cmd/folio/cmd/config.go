package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/folio/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a configuration file holding every default",
	Long: `Write a configuration file holding every default setting. Without an
argument folio.yaml is written to the current directory.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			filename = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(filename); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", filename)
		}
		if err := config.GenerateDefaultConfigFile(filename); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", filename)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
FOLIO_* environment variables and global flags, followed by where it was
loaded from. Validation problems are reported but do not stop the output.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		out := cmd.OutOrStdout()

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		if err := enc.Close(); err != nil {
			return err
		}

		_, _ = fmt.Fprintln(out)
		GetConfigLoader().PrintConfigInfo(out)
		if err := cfg.Validate(); err != nil {
			_, _ = fmt.Fprintf(out, "Validation: %v\n", err)
		} else {
			_, _ = fmt.Fprintln(out, "Validation: ok")
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
