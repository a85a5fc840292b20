package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/folio/internal/config"
	"github.com/MeKo-Tech/folio/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "OCR for IIIF manifests and collections",
	Long: `folio walks IIIF Presentation 2.x manifests and collections, downloads page
images through the IIIF Image API and runs OCR on every page, appending one
JSON record per page to a JSONL file per manifest.

Runs are resumable: pages whose key is already present in the output file are
skipped, so an interrupted run can simply be restarted.

Examples:
  folio validate https://example.org/iiif/collection.json
  folio ocr https://example.org/iiif/book/manifest --out book.jsonl --max-pages 5
  folio prepare collection.json --manifest-list manifests.tsv --output-dir runs/ocr
  folio run manifests.tsv --workers 4`,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.PersistentFlags().GetBool("version"); v {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "folio version "+version.String())
			return nil
		}
		return cmd.Help()
	},
}

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is folio.yaml in ., $HOME, $HOME/.config/folio, /etc/folio)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("cache-dir", config.DefaultCacheDir, "cache directory for downloaded images")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		cfg := GetConfig()

		logLevel := slog.LevelInfo
		if cfg.Verbose {
			logLevel = slog.LevelDebug
		} else {
			switch cfg.LogLevel {
			case "debug":
				logLevel = slog.LevelDebug
			case "warn":
				logLevel = slog.LevelWarn
			case "error":
				logLevel = slog.LevelError
			}
		}

		// stdout carries reports and URLs, so logs go to stderr.
		logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
		return nil
	}
}

// initConfig reads in config file and ENV variables. Validation is left to
// the commands that need a complete configuration.
func initConfig() error {
	configLoader = config.NewLoader()

	var err error
	globalConfig, err = configLoader.LoadWithFileWithoutValidation(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	return nil
}

// GetConfig returns the global configuration with bound flags applied.
func GetConfig() *config.Config {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			cfg := config.DefaultConfig()
			return &cfg
		}
	}

	// Flags bound to viper after the initial load are only visible after a
	// fresh Unmarshal.
	var cfg config.Config
	if err := GetConfigLoader().GetViper().Unmarshal(&cfg); err != nil {
		return globalConfig
	}
	return &cfg
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
